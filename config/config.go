package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"futures-trailing-bot/internal/risk"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	BinanceConfig        BinanceConfig        `json:"binance" yaml:"binance"`
	TradingConfig        TradingConfig        `json:"trading" yaml:"trading"`
	StrategyConfig       StrategyConfig       `json:"strategy" yaml:"strategy"`
	RiskConfig           RiskConfig           `json:"risk" yaml:"risk"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	NotificationConfig   NotificationConfig   `json:"notification" yaml:"notification"`
	LoggingConfig        LoggingConfig        `json:"logging" yaml:"logging"`
	ServerConfig         ServerConfig         `json:"server" yaml:"server"`
	AuthConfig           AuthConfig           `json:"auth" yaml:"auth"`
	VaultConfig          VaultConfig          `json:"vault" yaml:"vault"`
	RedisConfig          RedisConfig          `json:"redis" yaml:"redis"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	TestNet   bool   `json:"testnet" yaml:"testnet"`
}

// TradingConfig holds the single-symbol trading loop settings
type TradingConfig struct {
	Symbol              string  `json:"symbol" yaml:"symbol"`
	InvestmentUSD       float64 `json:"investment_usd" yaml:"investment_usd"` // Margin committed per entry
	Leverage            int     `json:"leverage" yaml:"leverage"`
	PollIntervalSeconds int     `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	Lookback            int     `json:"lookback" yaml:"lookback"` // Candles fetched per timeframe
	TickSize            float64 `json:"tick_size" yaml:"tick_size"` // Overrides exchange metadata when > 0
	ATRMultiplier       float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
	ATRPeriod           int     `json:"atr_period" yaml:"atr_period"`
	TrendTimeframe      string  `json:"trend_timeframe" yaml:"trend_timeframe"`
	TriggerTimeframe    string  `json:"trigger_timeframe" yaml:"trigger_timeframe"`
	RequireVolume       bool    `json:"require_volume" yaml:"require_volume"` // Entry needs volume above its SMA5
	DryRun              bool    `json:"dry_run" yaml:"dry_run"`             // Paper exchange fed by live candles
}

// StrategyConfig selects the trailing strategy; an empty name keeps the plain SL ratchet
type StrategyConfig struct {
	Name  string   `json:"name" yaml:"name"`
	Theta *float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
	Rho   *float64 `json:"rho,omitempty" yaml:"rho,omitempty"`
}

// Params returns the bump parameters for risk.NewStrategy.
func (c StrategyConfig) Params() risk.Params {
	return risk.Params{Theta: c.Theta, Rho: c.Rho}
}

type RiskConfig struct {
	MaxDrawdownPercent float64 `json:"max_drawdown_percent" yaml:"max_drawdown_percent"` // Give-back from peak, % of entry; 0 disables
	DrawdownAction     string  `json:"drawdown_action" yaml:"drawdown_action"`           // "alert" or "exit"
}

type CircuitBreakerConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour" yaml:"max_loss_per_hour"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	MaxDailyLoss         float64 `json:"max_daily_loss" yaml:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades" yaml:"max_daily_trades"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled" yaml:"enabled"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" yaml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" yaml:"include_file"` // Include file and line number
}

// ServerConfig holds the operator HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"` // Comma separated, "*" for any
	ReadTimeout     int    `json:"read_timeout" yaml:"read_timeout"`       // Seconds
	WriteTimeout    int    `json:"write_timeout" yaml:"write_timeout"`     // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AuthConfig holds operator token configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	JWTSecret           string        `json:"jwt_secret" yaml:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration" yaml:"access_token_duration"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV v2 mount
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Prefix for API keys
	Account    string `json:"account" yaml:"account"`         // Key owner under SecretPath
}

// RedisConfig holds Redis configuration for market metadata and event fan-out
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
	Channel  string `json:"channel" yaml:"channel"` // Pub/sub channel for lifecycle events
}

// Load reads .env, then the config file at path (JSON or YAML by extension),
// then environment overrides, then defaults, and validates the result.
// A missing .env or config file is not an error. On a validation failure the
// populated config is returned with an error wrapping ErrInvalidConfig so
// callers can apply overrides and validate again.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		fileCfg, err := loadFromFile(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values already set by the file are the fallbacks.
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)

	// Trading config
	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.TradingConfig.Symbol)
	cfg.TradingConfig.InvestmentUSD = getEnvFloatOrDefault("TRADING_INVESTMENT_USD", cfg.TradingConfig.InvestmentUSD)
	cfg.TradingConfig.Leverage = getEnvIntOrDefault("TRADING_LEVERAGE", cfg.TradingConfig.Leverage)
	cfg.TradingConfig.PollIntervalSeconds = getEnvIntOrDefault("TRADING_POLL_INTERVAL", cfg.TradingConfig.PollIntervalSeconds)
	cfg.TradingConfig.Lookback = getEnvIntOrDefault("TRADING_LOOKBACK", cfg.TradingConfig.Lookback)
	cfg.TradingConfig.TickSize = getEnvFloatOrDefault("TRADING_TICK_SIZE", cfg.TradingConfig.TickSize)
	cfg.TradingConfig.ATRMultiplier = getEnvFloatOrDefault("TRADING_ATR_MULTIPLIER", cfg.TradingConfig.ATRMultiplier)
	cfg.TradingConfig.DryRun = getEnvBoolOrDefault("TRADING_DRY_RUN", cfg.TradingConfig.DryRun)

	// Strategy config
	cfg.StrategyConfig.Name = getEnvOrDefault("STRATEGY", cfg.StrategyConfig.Name)
	cfg.StrategyConfig.Theta = getEnvFloatPtr("STRATEGY_THETA", cfg.StrategyConfig.Theta)
	cfg.StrategyConfig.Rho = getEnvFloatPtr("STRATEGY_RHO", cfg.StrategyConfig.Rho)

	// Risk config
	cfg.RiskConfig.MaxDrawdownPercent = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN_PERCENT", cfg.RiskConfig.MaxDrawdownPercent)
	cfg.RiskConfig.DrawdownAction = getEnvOrDefault("RISK_DRAWDOWN_ACTION", cfg.RiskConfig.DrawdownAction)

	// Circuit breaker config
	cfg.CircuitBreakerConfig.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cfg.CircuitBreakerConfig.Enabled)
	cfg.CircuitBreakerConfig.MaxLossPerHour = getEnvFloatOrDefault("CIRCUIT_MAX_LOSS_PER_HOUR", cfg.CircuitBreakerConfig.MaxLossPerHour)
	cfg.CircuitBreakerConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", cfg.CircuitBreakerConfig.MaxConsecutiveLosses)
	cfg.CircuitBreakerConfig.CooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", cfg.CircuitBreakerConfig.CooldownMinutes)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.Account = getEnvOrDefault("VAULT_ACCOUNT", cfg.VaultConfig.Account)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
}

func applyDefaults(cfg *Config) {
	t := &cfg.TradingConfig
	if t.Symbol == "" {
		t.Symbol = "BTCUSDT"
	}
	t.Symbol = strings.ToUpper(t.Symbol)
	if t.Leverage == 0 {
		t.Leverage = 5
	}
	if t.PollIntervalSeconds == 0 {
		t.PollIntervalSeconds = 10
	}
	if t.Lookback == 0 {
		t.Lookback = risk.DefaultLookback
	}
	if t.ATRMultiplier == 0 {
		t.ATRMultiplier = risk.DefaultATRMultiplier
	}
	if t.ATRPeriod == 0 {
		t.ATRPeriod = risk.DefaultATRPeriod
	}
	if t.TrendTimeframe == "" {
		t.TrendTimeframe = "15m"
	}
	if t.TriggerTimeframe == "" {
		t.TriggerTimeframe = "5m"
	}

	if cfg.RiskConfig.DrawdownAction == "" {
		cfg.RiskConfig.DrawdownAction = string(risk.DrawdownAlert)
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}

	s := &cfg.ServerConfig
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.AllowedOrigins == "" {
		s.AllowedOrigins = "*"
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10
	}

	if cfg.AuthConfig.AccessTokenDuration == 0 {
		cfg.AuthConfig.AccessTokenDuration = 24 * time.Hour
	}

	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "trading-bot/api-keys"
	}
	if cfg.VaultConfig.Account == "" {
		cfg.VaultConfig.Account = "default"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.RedisConfig.Channel == "" {
		cfg.RedisConfig.Channel = "futures-trailing-bot:events"
	}
}

// Validate checks ranges and cross-section requirements
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	t := c.TradingConfig
	if t.InvestmentUSD <= 0 {
		add("trading.investment_usd must be positive, got %v", t.InvestmentUSD)
	}
	if t.Leverage < 1 || t.Leverage > 125 {
		add("trading.leverage must be within [1,125], got %d", t.Leverage)
	}
	if t.PollIntervalSeconds < 1 {
		add("trading.poll_interval_seconds must be >= 1, got %d", t.PollIntervalSeconds)
	}
	if t.Lookback < t.ATRPeriod+1 {
		add("trading.lookback %d is too short for ATR(%d)", t.Lookback, t.ATRPeriod)
	}
	if t.TickSize < 0 {
		add("trading.tick_size must not be negative")
	}
	if t.ATRMultiplier < 0 {
		add("trading.atr_multiplier must not be negative")
	}

	if _, err := risk.NewStrategy(c.StrategyConfig.Name, c.StrategyConfig.Params()); err != nil {
		errs = append(errs, fmt.Errorf("%w: strategy: %w", ErrInvalidConfig, err))
	}
	if err := risk.DrawdownAction(c.RiskConfig.DrawdownAction).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: risk: %w", ErrInvalidConfig, err))
	}
	if c.RiskConfig.MaxDrawdownPercent < 0 {
		add("risk.max_drawdown_percent must not be negative")
	}

	if !t.DryRun && !c.VaultConfig.Enabled && (c.BinanceConfig.APIKey == "" || c.BinanceConfig.SecretKey == "") {
		add("binance credentials are required for live trading (set them, enable vault, or use dry run)")
	}
	if c.VaultConfig.Enabled && c.VaultConfig.Token == "" {
		add("vault.token is required when vault is enabled")
	}
	if c.ServerConfig.Enabled && c.AuthConfig.Enabled && len(c.AuthConfig.JWTSecret) < 32 {
		add("auth.jwt_secret must be at least 32 characters")
	}
	if c.NotificationConfig.Telegram.Enabled && (c.NotificationConfig.Telegram.BotToken == "" || c.NotificationConfig.Telegram.ChatID == "") {
		add("notification.telegram needs bot_token and chat_id")
	}
	if c.NotificationConfig.Discord.Enabled && c.NotificationConfig.Discord.WebhookURL == "" {
		add("notification.discord needs webhook_url")
	}

	return errors.Join(errs...)
}

// PollInterval returns the poll interval as a duration
func (c TradingConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, &config)
	default:
		err = json.Unmarshal(file, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", filename, err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvFloatPtr(key string, defaultValue *float64) *float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return &floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a dry-run configuration to filename, as YAML
// or JSON depending on the extension.
func GenerateSampleConfig(filename string) error {
	theta, rho := risk.DefaultTheta, risk.DefaultRho
	config := Config{
		BinanceConfig: BinanceConfig{
			BaseURL: "https://fapi.binance.com",
			TestNet: true,
		},
		TradingConfig: TradingConfig{
			Symbol:              "BTCUSDT",
			InvestmentUSD:       100,
			Leverage:            5,
			PollIntervalSeconds: 10,
			Lookback:            risk.DefaultLookback,
			ATRMultiplier:       risk.DefaultATRMultiplier,
			ATRPeriod:           risk.DefaultATRPeriod,
			TrendTimeframe:      "15m",
			TriggerTimeframe:    "5m",
			DryRun:              true,
		},
		StrategyConfig: StrategyConfig{
			Name:  risk.NameSLAndTP,
			Theta: &theta,
			Rho:   &rho,
		},
		RiskConfig: RiskConfig{
			MaxDrawdownPercent: 3,
			DrawdownAction:     string(risk.DrawdownAlert),
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:              true,
			MaxLossPerHour:       3,
			MaxConsecutiveLosses: 5,
			CooldownMinutes:      30,
			MaxDailyLoss:         5,
			MaxDailyTrades:       50,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Enabled: true,
			Port:    8080,
			Host:    "127.0.0.1",
		},
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0o644)
}
