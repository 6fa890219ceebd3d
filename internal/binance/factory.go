package binance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/vault"
)

// ErrMissingCredentials is returned when neither the config nor Vault
// yields an API key pair.
var ErrMissingCredentials = errors.New("binance API credentials are not configured")

const exchangeName = "binance"

// FactoryConfig holds static credentials and endpoint selection
type FactoryConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	TestNet   bool
}

// CredentialSource resolves stored API keys. Implemented by vault.Client.
type CredentialSource interface {
	GetAPIKey(ctx context.Context, account, exchange string, isTestnet bool) (*vault.APIKeyData, error)
}

// ClientFactory builds futures clients from config or Vault credentials.
// Clients it creates share one rate limiter.
type ClientFactory struct {
	config  FactoryConfig
	vault   CredentialSource
	account string
	limiter *RateLimiter
	logger  zerolog.Logger
	opts    []Option
}

// FactoryOption configures a ClientFactory
type FactoryOption func(*ClientFactory)

// WithCredentialSource makes the factory load keys for account from src.
// Keys in the Binance config still win when both are set.
func WithCredentialSource(src CredentialSource, account string) FactoryOption {
	return func(f *ClientFactory) {
		f.vault = src
		f.account = account
	}
}

// WithClientOptions forwards options to every client built.
func WithClientOptions(opts ...Option) FactoryOption {
	return func(f *ClientFactory) { f.opts = append(f.opts, opts...) }
}

// WithFactoryLogger sets the logger handed to clients.
func WithFactoryLogger(l zerolog.Logger) FactoryOption {
	return func(f *ClientFactory) { f.logger = l }
}

// NewClientFactory creates a new client factory
func NewClientFactory(cfg FactoryConfig, opts ...FactoryOption) *ClientFactory {
	f := &ClientFactory{
		config:  cfg,
		limiter: NewRateLimiter(DefaultMaxWeight),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FuturesClient resolves credentials and returns a ready client.
func (f *ClientFactory) FuturesClient(ctx context.Context) (*FuturesClientImpl, error) {
	apiKey, secretKey, source, err := f.credentials(ctx)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithRateLimiter(f.limiter), WithLogger(f.logger)}
	if f.config.BaseURL != "" {
		opts = append(opts, WithBaseURL(f.config.BaseURL))
	}
	opts = append(opts, f.opts...)

	f.logger.Info().
		Str("component", "binance").
		Str("credentials", source).
		Bool("testnet", f.config.TestNet).
		Msg("Futures client created")

	return NewFuturesClient(apiKey, secretKey, f.config.TestNet, opts...), nil
}

func (f *ClientFactory) credentials(ctx context.Context) (apiKey, secretKey, source string, err error) {
	if f.config.APIKey != "" && f.config.SecretKey != "" {
		return f.config.APIKey, f.config.SecretKey, "config", nil
	}
	if f.vault == nil {
		return "", "", "", ErrMissingCredentials
	}

	data, err := f.vault.GetAPIKey(ctx, f.account, exchangeName, f.config.TestNet)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get API key for account %s: %w", f.account, err)
	}
	if data.APIKey == "" || data.SecretKey == "" {
		return "", "", "", ErrMissingCredentials
	}
	return data.APIKey, data.SecretKey, "vault", nil
}
