package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/config"
	"futures-trailing-bot/internal/api"
	"futures-trailing-bot/internal/auth"
	"futures-trailing-bot/internal/binance"
	"futures-trailing-bot/internal/bot"
	"futures-trailing-bot/internal/cache"
	"futures-trailing-bot/internal/circuit"
	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/logging"
	"futures-trailing-bot/internal/notification"
	"futures-trailing-bot/internal/position"
	"futures-trailing-bot/internal/risk"
	"futures-trailing-bot/internal/strategy"
	"futures-trailing-bot/internal/vault"
)

// optionalFloat is a flag that records whether it was set.
type optionalFloat struct{ v *float64 }

func (o *optionalFloat) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.FormatFloat(*o.v, 'g', -1, 64)
}

func (o *optionalFloat) Set(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.v = &f
	return nil
}

func main() {
	var theta, rho optionalFloat
	configPath := flag.String("config", "config.yaml", "path to configuration file (yaml or json)")
	strategyName := flag.String("strategy", "", "trailing strategy: "+strings.Join(risk.Names(), ", "))
	flag.Var(&theta, "theta", "TP bump trigger as a fraction of the distance to TP")
	flag.Var(&rho, "rho", "TP bump size in ATR multiples")
	dryRun := flag.Bool("dry-run", false, "trade against the in-memory paper exchange")
	issueToken := flag.String("issue-token", "", "print an operator token for this subject and exit")
	initConfig := flag.Bool("init-config", false, "write a sample config to --config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil && !errors.Is(err, config.ErrInvalidConfig) {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg != nil {
		applyFlags(cfg, *strategyName, theta.v, rho.v, *dryRun)
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			logger.Fatal().Err(err).Msg("Failed to issue token")
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Bot exited with error")
	}
}

// applyFlags lets command line flags win over file and environment values.
func applyFlags(cfg *config.Config, strategyName string, theta, rho *float64, dryRun bool) {
	if strategyName != "" {
		cfg.StrategyConfig.Name = strategyName
	}
	if theta != nil {
		cfg.StrategyConfig.Theta = theta
	}
	if rho != nil {
		cfg.StrategyConfig.Rho = rho
	}
	if dryRun {
		cfg.TradingConfig.DryRun = true
	}
}

func printToken(cfg *config.Config, subject string) error {
	jwtManager, err := auth.NewJWTManager(auth.Config{
		Secret:              cfg.AuthConfig.JWTSecret,
		AccessTokenDuration: cfg.AuthConfig.AccessTokenDuration,
	})
	if err != nil {
		return err
	}
	token, expiresAt, err := jwtManager.IssueToken(subject)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()

	// ==================== Notifications ====================
	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager(logger)
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  true,
			}))
			logger.Info().Msg("Telegram notifications enabled")
		}
		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    true,
			}))
			logger.Info().Msg("Discord notifications enabled")
		}
		notifyManager.Attach(eventBus)
	}

	// ==================== Redis ====================
	var marketStore exchange.MarketStore
	if cfg.RedisConfig.Enabled {
		cs, err := cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer cs.Close()
		marketStore = cache.NewMarketStore(cs, cache.DefaultMarketTTL, logger)
		cache.NewEventFanout(cs, cfg.RedisConfig.Channel, logger).Attach(eventBus)
	}

	// ==================== Exchange ====================
	client, err := newFuturesClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var ex exchange.Exchange = exchange.NewBinance(client, marketStore, logger)
	if cfg.TradingConfig.DryRun {
		ex = exchange.NewPaper(ex, logger)
		logger.Warn().Msg("Dry run: orders go to the paper exchange")
	}

	// ==================== Position management ====================
	trailing, err := risk.NewStrategy(cfg.StrategyConfig.Name, cfg.StrategyConfig.Params())
	if err != nil {
		return err
	}

	levels := &risk.VolatilityLevels{
		Exchange:      ex,
		Symbol:        cfg.TradingConfig.Symbol,
		ATRMultiplier: cfg.TradingConfig.ATRMultiplier,
		ATRPeriod:     cfg.TradingConfig.ATRPeriod,
		Lookback:      cfg.TradingConfig.Lookback,
		TickOverride:  cfg.TradingConfig.TickSize,
	}

	managerOpts := []position.Option{
		position.WithStrategy(trailing),
		position.WithPublisher(eventBus),
		position.WithLogger(logger),
	}
	if cfg.RiskConfig.MaxDrawdownPercent > 0 {
		policy := position.NewTrackerPolicy(cfg.RiskConfig.MaxDrawdownPercent, risk.DrawdownAction(cfg.RiskConfig.DrawdownAction))
		managerOpts = append(managerOpts, position.WithDrawdownPolicy(policy))
	}
	manager := position.NewManager(position.Config{
		Symbol:   cfg.TradingConfig.Symbol,
		Leverage: cfg.TradingConfig.Leverage,
		TickSize: cfg.TradingConfig.TickSize,
	}, ex, levels, managerOpts...)

	// ==================== Entry gate ====================
	breaker := circuit.NewCircuitBreaker(&circuit.CircuitBreakerConfig{
		Enabled:              cfg.CircuitBreakerConfig.Enabled,
		MaxLossPerHour:       cfg.CircuitBreakerConfig.MaxLossPerHour,
		MaxConsecutiveLosses: cfg.CircuitBreakerConfig.MaxConsecutiveLosses,
		CooldownMinutes:      cfg.CircuitBreakerConfig.CooldownMinutes,
		MaxDailyLoss:         cfg.CircuitBreakerConfig.MaxDailyLoss,
		MaxDailyTrades:       cfg.CircuitBreakerConfig.MaxDailyTrades,
	}, circuit.WithPublisher(eventBus), circuit.WithLogger(logger))
	breaker.Attach(eventBus)

	// ==================== Trading loop ====================
	signalConfig := strategy.DefaultMomentumCrossConfig(cfg.TradingConfig.Symbol)
	signalConfig.RequireVolume = cfg.TradingConfig.RequireVolume

	tradingBot, err := bot.NewTradingBot(bot.Config{
		Symbol:           cfg.TradingConfig.Symbol,
		InvestmentUSD:    cfg.TradingConfig.InvestmentUSD,
		Leverage:         cfg.TradingConfig.Leverage,
		PollInterval:     cfg.TradingConfig.PollInterval(),
		Lookback:         cfg.TradingConfig.Lookback,
		TrendTimeframe:   cfg.TradingConfig.TrendTimeframe,
		TriggerTimeframe: cfg.TradingConfig.TriggerTimeframe,
		DryRun:           cfg.TradingConfig.DryRun,
	}, ex, manager, strategy.NewMomentumCross(signalConfig),
		bot.WithGate(breaker),
		bot.WithEventBus(eventBus),
		bot.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// ==================== Operator API ====================
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		serverOpts := []api.Option{api.WithBreaker(breaker), api.WithLogger(logger)}
		if cfg.AuthConfig.Enabled {
			jwtManager, err := auth.NewJWTManager(auth.Config{
				Secret:              cfg.AuthConfig.JWTSecret,
				AccessTokenDuration: cfg.AuthConfig.AccessTokenDuration,
			})
			if err != nil {
				return err
			}
			serverOpts = append(serverOpts, api.WithAuth(jwtManager))
		}

		server = api.NewServer(api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
			ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			ProductionMode: !cfg.TradingConfig.DryRun,
		}, tradingBot, manager, eventBus, serverOpts...)

		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server failed")
				stop()
			}
		}()
	}

	if err := tradingBot.Start(ctx); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	tradingBot.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down web server")
		}
	}

	if pos := manager.Active(); pos != nil {
		plog := logging.PositionContext(logger, pos.Symbol, string(pos.Side), pos.EntryPrice, pos.Remaining())
		plog.Warn().
			Float64("stop_loss", pos.CurrentSL).
			Float64("take_profit", pos.TakeProfit).
			Msg("Position left open with resting protective orders")
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// newFuturesClient resolves credentials from config, then Vault. Dry runs
// fall back to an unauthenticated client, which is enough for candles and
// exchange info.
func newFuturesClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*binance.FuturesClientImpl, error) {
	factoryOpts := []binance.FactoryOption{binance.WithFactoryLogger(logger)}
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(vault.Config{
			Enabled:    true,
			Address:    cfg.VaultConfig.Address,
			Token:      cfg.VaultConfig.Token,
			MountPath:  cfg.VaultConfig.MountPath,
			SecretPath: cfg.VaultConfig.SecretPath,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := vaultClient.Health(ctx); err != nil {
			return nil, err
		}
		factoryOpts = append(factoryOpts, binance.WithCredentialSource(vaultClient, cfg.VaultConfig.Account))
	}

	factory := binance.NewClientFactory(binance.FactoryConfig{
		APIKey:    cfg.BinanceConfig.APIKey,
		SecretKey: cfg.BinanceConfig.SecretKey,
		BaseURL:   cfg.BinanceConfig.BaseURL,
		TestNet:   cfg.BinanceConfig.TestNet,
	}, factoryOpts...)

	client, err := factory.FuturesClient(ctx)
	if errors.Is(err, binance.ErrMissingCredentials) && cfg.TradingConfig.DryRun {
		logger.Warn().Msg("No API credentials, using public market data only")
		opts := []binance.Option{binance.WithLogger(logger)}
		if cfg.BinanceConfig.BaseURL != "" {
			opts = append(opts, binance.WithBaseURL(cfg.BinanceConfig.BaseURL))
		}
		return binance.NewFuturesClient("", "", cfg.BinanceConfig.TestNet, opts...), nil
	}
	return client, err
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
