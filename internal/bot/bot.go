package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/indicators"
	"futures-trailing-bot/internal/metrics"
	"futures-trailing-bot/internal/position"
	"futures-trailing-bot/internal/price"
	"futures-trailing-bot/internal/strategy"
)

// Config holds the polling loop settings
type Config struct {
	Symbol           string
	InvestmentUSD    float64
	Leverage         int
	PollInterval     time.Duration
	Lookback         int
	TrendTimeframe   string
	TriggerTimeframe string
	DryRun           bool
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.Lookback <= 0 {
		c.Lookback = 100
	}
	if c.TrendTimeframe == "" {
		c.TrendTimeframe = indicators.TF15m
	}
	if c.TriggerTimeframe == "" {
		c.TriggerTimeframe = indicators.TF5m
	}
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
}

// Gate decides whether a new entry may be opened.
type Gate interface {
	CanTrade() (bool, string)
}

// Status is a point-in-time view of the loop.
type Status struct {
	Running     bool             `json:"running"`
	DryRun      bool             `json:"dry_run"`
	Symbol      string           `json:"symbol"`
	Strategy    string           `json:"strategy"`
	State       position.State   `json:"state"`
	LastTick    time.Time        `json:"last_tick"`
	LastCandle  time.Time        `json:"last_candle"`
	LastSignal  *strategy.Signal `json:"last_signal,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	TickCount   int64            `json:"tick_count"`
	CandleCount int64            `json:"candle_count"`
}

// TradingBot polls market data and drives the position manager on every new
// trigger candle: watchdog, trailing, exit check, then entry.
type TradingBot struct {
	cfg      Config
	ex       exchange.Exchange
	manager  *position.Manager
	strategy strategy.Strategy
	gate     Gate
	eventBus *events.EventBus
	logger   zerolog.Logger

	mu          sync.RWMutex
	trend       *indicators.Frame
	trigger     *indicators.Frame
	lastTrend   time.Time
	lastTrigger time.Time
	lastTick    time.Time
	lastSignal  *strategy.Signal
	lastErr     error
	ticks       int64
	candles     int64
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Option configures a TradingBot.
type Option func(*TradingBot)

func WithGate(g Gate) Option { return func(b *TradingBot) { b.gate = g } }

func WithEventBus(bus *events.EventBus) Option { return func(b *TradingBot) { b.eventBus = bus } }

func WithLogger(l zerolog.Logger) Option { return func(b *TradingBot) { b.logger = l } }

func NewTradingBot(cfg Config, ex exchange.Exchange, manager *position.Manager, strat strategy.Strategy, opts ...Option) (*TradingBot, error) {
	if ex == nil || manager == nil || strat == nil {
		return nil, errors.New("bot: exchange, position manager and strategy are required")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("bot: symbol is required")
	}
	if cfg.InvestmentUSD <= 0 {
		return nil, fmt.Errorf("bot: investment must be positive, got %v", cfg.InvestmentUSD)
	}
	cfg.applyDefaults()

	b := &TradingBot{
		cfg:      cfg,
		ex:       ex,
		manager:  manager,
		strategy: strat,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "bot").Str("symbol", cfg.Symbol).Logger()
	return b, nil
}

// Start rebuilds any open position, loads the initial frames and starts the
// poll loop. The first candle seen at start is history, not a trigger.
func (b *TradingBot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot: already running")
	}
	b.mu.Unlock()

	if b.manager.LoadActive(ctx) {
		pos := b.manager.Active()
		b.logger.Warn().
			Str("side", string(pos.Side)).
			Float64("size", pos.Size).
			Float64("stop_loss", pos.CurrentSL).
			Float64("take_profit", pos.TakeProfit).
			Msg("Resumed open position")
	}

	if err := b.Prime(ctx); err != nil {
		return fmt.Errorf("initial candle load: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.running = true
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(loopCtx)

	b.logger.Info().
		Bool("dry_run", b.cfg.DryRun).
		Str("strategy", b.strategy.Name()).
		Dur("poll_interval", b.cfg.PollInterval).
		Msg("Trading bot started")
	b.publish(events.Event{
		Type: events.EventBotStarted,
		Data: map[string]interface{}{"symbol": b.cfg.Symbol, "dry_run": b.cfg.DryRun},
	})
	return nil
}

// Stop ends the poll loop and waits for the current tick to finish. The open
// position and its protective orders are left in place.
func (b *TradingBot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
	b.logger.Info().Msg("Trading bot stopped")
	b.publish(events.Event{
		Type: events.EventBotStopped,
		Data: map[string]interface{}{"symbol": b.cfg.Symbol},
	})
}

func (b *TradingBot) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.Tick(ctx); err != nil && ctx.Err() == nil {
				b.logger.Error().Err(err).Msg("Tick failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Prime loads both frames without acting on them.
func (b *TradingBot) Prime(ctx context.Context) error {
	trend, trigger, err := b.refreshFrames(ctx)
	if err != nil {
		return err
	}
	if len(trend) == 0 || len(trigger) == 0 {
		return fmt.Errorf("no candles for %s", b.cfg.Symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trend = indicators.Compute(trend, b.cfg.TrendTimeframe)
	b.trigger = indicators.Compute(trigger, b.cfg.TriggerTimeframe)
	b.lastTrend = trend[len(trend)-1].Time
	b.lastTrigger = trigger[len(trigger)-1].Time
	return nil
}

// Tick polls once. It reports whether a new trigger candle was processed.
func (b *TradingBot) Tick(ctx context.Context) (bool, error) {
	trend, trigger, err := b.refreshFrames(ctx)

	b.mu.Lock()
	b.ticks++
	b.lastTick = time.Now()
	b.lastErr = err
	b.mu.Unlock()

	if err != nil {
		metrics.Ticks.WithLabelValues("error").Inc()
		return false, err
	}

	b.mu.Lock()
	if n := len(trend); n > 0 && !trend[n-1].Time.Equal(b.lastTrend) {
		b.trend = indicators.Compute(trend, b.cfg.TrendTimeframe)
		b.lastTrend = trend[n-1].Time
		b.logger.Debug().Time("candle", b.lastTrend).Msg("Trend frame refreshed")
	}
	n := len(trigger)
	if n == 0 || trigger[n-1].Time.Equal(b.lastTrigger) {
		b.mu.Unlock()
		metrics.Ticks.WithLabelValues("idle").Inc()
		return false, nil
	}
	b.trigger = indicators.Compute(trigger, b.cfg.TriggerTimeframe)
	b.lastTrigger = trigger[n-1].Time
	b.candles++
	trendFrame, triggerFrame := b.trend, b.trigger
	b.mu.Unlock()

	metrics.Ticks.WithLabelValues("candle").Inc()
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	return true, b.onCandle(ctx, trendFrame, triggerFrame)
}

// refreshFrames reads both timeframes concurrently.
func (b *TradingBot) refreshFrames(ctx context.Context) (trend, trigger []exchange.Candle, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trend, err = b.ex.FetchOHLCV(gctx, b.cfg.Symbol, b.cfg.TrendTimeframe, b.cfg.Lookback)
		if err != nil {
			return fmt.Errorf("fetch %s candles: %w", b.cfg.TrendTimeframe, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trigger, err = b.ex.FetchOHLCV(gctx, b.cfg.Symbol, b.cfg.TriggerTimeframe, b.cfg.Lookback)
		if err != nil {
			return fmt.Errorf("fetch %s candles: %w", b.cfg.TriggerTimeframe, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return trend, trigger, nil
}

// onCandle runs the lifecycle steps in order. Lifecycle failures are logged
// and published; they never stop the loop.
func (b *TradingBot) onCandle(ctx context.Context, trend, trigger *indicators.Frame) error {
	last := trigger.Last()
	log := b.logger.With().Time("candle", last.Time).Float64("close", last.Close).Logger()

	b.manager.Watchdog(ctx, last.Close)

	if err := b.manager.UpdateTrail(ctx, last.Close); err != nil {
		log.Error().Err(err).Msg("Trail update failed")
		b.publishError("update_trail", err)
	}
	if err := b.manager.CheckExit(ctx); err != nil {
		log.Error().Err(err).Msg("Exit check failed")
		b.publishError("check_exit", err)
	}

	sig, err := b.strategy.Evaluate(trend, trigger)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", b.strategy.Name(), err)
	}
	b.mu.Lock()
	b.lastSignal = sig
	b.mu.Unlock()

	side, ok := sig.Side()
	if !ok {
		metrics.Signals.WithLabelValues("none").Inc()
		log.Debug().Str("momentum", string(sig.Momentum)).Int("cross", sig.Cross).Float64("rsi", sig.RSI).Msg("No signal")
		return nil
	}
	if side == exchange.Buy {
		metrics.Signals.WithLabelValues("long").Inc()
	} else {
		metrics.Signals.WithLabelValues("short").Inc()
	}
	log.Info().Str("signal", string(sig.Type)).Str("reason", sig.Reason).Bool("volume_ok", sig.VolumeOK).Msg("Signal detected")
	if b.eventBus != nil {
		b.eventBus.PublishSignal(b.cfg.Symbol, string(sig.Type), last.Close, sig.Details())
	}

	if b.manager.State() != position.StateFlat {
		log.Debug().Msg("Position already held, signal ignored")
		return nil
	}
	if b.gate != nil {
		if allowed, reason := b.gate.CanTrade(); !allowed {
			log.Warn().Str("reason", reason).Msg("Entry blocked by circuit breaker")
			return nil
		}
	}

	size, err := b.positionSize(ctx, last.Close)
	if errors.Is(err, price.ErrBelowMinQty) {
		log.Warn().Err(err).Msg("Position size below exchange minimum, entry skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("position size: %w", err)
	}
	pos, err := b.manager.OpenPosition(ctx, side, last.Close, size)
	if err != nil {
		log.Error().Err(err).Str("side", string(side)).Float64("size", size).Msg("Open position failed")
		b.publishError("open_position", err)
		return nil
	}
	log.Info().
		Str("side", string(pos.Side)).
		Float64("entry", pos.EntryPrice).
		Float64("size", pos.Size).
		Float64("stop_loss", pos.CurrentSL).
		Float64("take_profit", pos.TakeProfit).
		Msg("Position opened")
	return nil
}

// positionSize converts the configured budget into contracts on the lot grid.
func (b *TradingBot) positionSize(ctx context.Context, lastClose float64) (float64, error) {
	size, err := price.ComputeSize(b.cfg.InvestmentUSD, float64(b.cfg.Leverage), lastClose)
	if err != nil {
		return 0, err
	}
	m, err := b.ex.Market(ctx, b.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("market metadata: %w", err)
	}
	return price.FloorQuantity(size, m.QtyStep, m.MinQty)
}

// Status returns a snapshot of the loop state.
func (b *TradingBot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Status{
		Running:     b.running,
		DryRun:      b.cfg.DryRun,
		Symbol:      b.cfg.Symbol,
		Strategy:    b.strategy.Name(),
		State:       b.manager.State(),
		LastTick:    b.lastTick,
		LastCandle:  b.lastTrigger,
		LastSignal:  b.lastSignal,
		TickCount:   b.ticks,
		CandleCount: b.candles,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}

// Manager exposes the position manager for the operator API.
func (b *TradingBot) Manager() *position.Manager { return b.manager }

func (b *TradingBot) publish(e events.Event) {
	if b.eventBus != nil {
		b.eventBus.Publish(e)
	}
}

func (b *TradingBot) publishError(source string, err error) {
	if b.eventBus != nil {
		b.eventBus.PublishError(source, "lifecycle step failed", err)
	}
}
