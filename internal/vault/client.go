package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

var (
	ErrDisabled       = errors.New("vault is disabled")
	ErrKeyNotFound    = errors.New("API key not found")
	ErrInvalidSecret  = errors.New("invalid secret format")
	ErrIncompleteKeys = errors.New("secret is missing api_key or secret_key")
)

// Config locates API keys in a KV v2 mount
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
}

// APIKeyData represents the API key data stored in Vault
type APIKeyData struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Exchange  string `json:"exchange"`
	IsTestnet bool   `json:"is_testnet"`
}

// Client reads exchange credentials from a KV v2 mount
type Client struct {
	client *api.Client
	config Config
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*APIKeyData
}

// NewClient creates a new Vault client
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger.With().Str("component", "vault").Logger(),
		cache:  make(map[string]*APIKeyData),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client

	return c, nil
}

// StoreAPIKey writes the key pair for account
func (c *Client) StoreAPIKey(ctx context.Context, account string, data APIKeyData) error {
	if !c.config.Enabled {
		return ErrDisabled
	}

	path := c.secretPath(account, data.Exchange, data.IsTestnet)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    data.APIKey,
			"secret_key": data.SecretKey,
			"exchange":   data.Exchange,
			"is_testnet": data.IsTestnet,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store API key in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[c.cacheKey(account, data.Exchange, data.IsTestnet)] = &data
	c.mu.Unlock()
	return nil
}

// GetAPIKey retrieves the key pair for account. Results are cached for the
// life of the client.
func (c *Client) GetAPIKey(ctx context.Context, account, exchange string, isTestnet bool) (*APIKeyData, error) {
	key := c.cacheKey(account, exchange, isTestnet)
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	path := c.secretPath(account, exchange, isTestnet)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w at %s", ErrKeyNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, ErrInvalidSecret
	}

	apiKeyData := &APIKeyData{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Exchange:  getString(data, "exchange"),
		IsTestnet: getBool(data, "is_testnet"),
	}
	if apiKeyData.APIKey == "" || apiKeyData.SecretKey == "" {
		return nil, ErrIncompleteKeys
	}
	if apiKeyData.Exchange == "" {
		apiKeyData.Exchange = exchange
	}

	c.mu.Lock()
	c.cache[key] = apiKeyData
	c.mu.Unlock()

	c.logger.Info().Str("account", account).Str("exchange", exchange).Bool("testnet", isTestnet).Msg("Loaded API key from vault")
	return apiKeyData, nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*APIKeyData)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func network(isTestnet bool) string {
	if isTestnet {
		return "testnet"
	}
	return "mainnet"
}

// secretPath returns the KV v2 data path for a secret
func (c *Client) secretPath(account, exchange string, isTestnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s/%s_%s", c.config.MountPath, c.config.SecretPath, account, exchange, network(isTestnet))
}

func (c *Client) cacheKey(account, exchange string, isTestnet bool) string {
	return fmt.Sprintf("%s/%s_%s", account, exchange, network(isTestnet))
}

// Helper functions
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		case json.Number:
			n, _ := v.Int64()
			return n != 0
		}
	}
	return false
}
