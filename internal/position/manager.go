package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/logging"
	"futures-trailing-bot/internal/metrics"
	"futures-trailing-bot/internal/order"
	"futures-trailing-bot/internal/price"
	"futures-trailing-bot/internal/risk"
)

// LevelsSource computes the initial protective levels for a fill.
type LevelsSource interface {
	InitialLevels(ctx context.Context, entry float64, side exchange.Side) (risk.Levels, error)
}

// Config holds the per-symbol settings of a Manager.
type Config struct {
	Symbol   string
	Leverage int
	// TickSize overrides the exchange tick size when positive.
	TickSize float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithStrategy selects the trailing strategy; nil keeps the plain ratchet.
func WithStrategy(s risk.Strategy) Option {
	return func(m *Manager) { m.strategy = s }
}

// WithRules replaces the default watchdog rules.
func WithRules(rules []Rule) Option {
	return func(m *Manager) { m.rules = rules }
}

// WithDrawdownPolicy plugs a handler into the drawdown rule.
func WithDrawdownPolicy(p DrawdownPolicy) Option {
	return func(m *Manager) { m.drawdown = p }
}

// WithPublisher sends lifecycle events to p.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the lifecycle state machine for one symbol. All public
// operations are serialized by a single mutex and call the exchange
// synchronously; the manager starts no goroutines.
type Manager struct {
	cfg       Config
	ex        exchange.Exchange
	gw        *order.Gateway
	levels    LevelsSource
	strategy  risk.Strategy
	rules     []Rule
	drawdown  DrawdownPolicy
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	active    *ActivePosition
	closing   bool
	tick      float64
	lastPrice float64

	// read without mu by Active and State
	view  atomic.Pointer[ActivePosition]
	state atomic.Value
}

// NewManager creates a flat manager trading cfg.Symbol on ex.
func NewManager(cfg Config, ex exchange.Exchange, levels LevelsSource, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		ex:     ex,
		levels: levels,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "position").Str("symbol", cfg.Symbol).Logger()
	m.gw = order.NewGateway(ex, cfg.Symbol, m.logger)
	if m.rules == nil {
		m.rules = DefaultRules(m.drawdown)
	}
	m.state.Store(StateFlat)
	return m
}

// Symbol returns the managed symbol.
func (m *Manager) Symbol() string { return m.cfg.Symbol }

// Active returns a copy of the open position, or nil when flat.
func (m *Manager) Active() *ActivePosition { return m.view.Load().clone() }

// State returns the lifecycle state.
func (m *Manager) State() State { return m.state.Load().(State) }

// ==================== Reconstruction ====================

// LoadActive rebuilds the open position from resting orders and live
// contracts, typically after a restart. Orders with a stop trigger are taken
// as the stop-loss, the others as the take-profit. Any failed query or missing
// piece leaves the manager flat. It reports whether a position was loaded.
func (m *Manager) LoadActive(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setActive(nil)

	open, err := m.ex.FetchOpenOrders(ctx, m.cfg.Symbol)
	if err != nil {
		m.logger.Error().Err(err).Msg("Load active: open orders query failed, staying flat")
		return false
	}
	var stops, limits []exchange.Order
	for _, o := range open {
		if o.HasStopTrigger() {
			stops = append(stops, o)
		} else {
			limits = append(limits, o)
		}
	}
	if len(stops) == 0 || len(limits) == 0 {
		m.logger.Info().Int("stops", len(stops)).Int("limits", len(limits)).Msg("No SL/TP pair resting, no position")
		return false
	}

	pos, err := m.findPosition(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Load active: positions query failed, staying flat")
		return false
	}
	if pos == nil {
		m.logger.Warn().Msg("SL/TP orders found but no open contracts")
		return false
	}

	sl := stops[0]
	slPrice := sl.StopPrice
	if slPrice == 0 {
		slPrice = sl.Price
	}
	tp := limits[0]
	size := math.Abs(pos.Contracts)

	m.setActive(&ActivePosition{
		Symbol:       m.cfg.Symbol,
		Side:         exchange.SideFromContracts(pos.Contracts),
		Size:         size,
		EntryPrice:   pos.EntryPrice,
		CurrentSL:    slPrice,
		TakeProfit:   tp.Price,
		TrailDist:    math.Abs(pos.EntryPrice - slPrice),
		IDs:          IDs{StopLoss: sl.ID, TakeProfit: tp.ID},
		QtyRemaining: size,
		OpenedAt:     m.now(),
	})
	m.logger.Info().
		Str("side", string(m.active.Side)).
		Float64("size", size).
		Float64("entry", pos.EntryPrice).
		Float64("sl", slPrice).
		Float64("tp", tp.Price).
		Msg("Loaded active position")
	return true
}

// ==================== Entry ====================

// OpenPosition enters with a market order and places the take-profit and
// stop-loss around the actual fill. If protection cannot be completed the
// position is flattened and the failure is returned wrapped in ErrUnprotected.
func (m *Manager) OpenPosition(ctx context.Context, side exchange.Side, entryHint, size float64) (*ActivePosition, error) {
	if err := side.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", order.ErrInvalidArgument, err)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %v", order.ErrInvalidArgument, size)
	}
	if entryHint <= 0 {
		return nil, fmt.Errorf("%w: entry price must be positive, got %v", order.ErrInvalidArgument, entryHint)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil || m.closing {
		return nil, ErrPositionActive
	}

	log := m.logger.With().Str("side", string(side)).Float64("size", size).Logger()
	log.Info().Float64("entry_hint", entryHint).Msg("Opening position")

	mkt, err := m.gw.PlaceMarket(ctx, side, size, order.WithLeverage(m.cfg.Leverage))
	if err != nil {
		return nil, fmt.Errorf("open %s %v: %w", side, size, err)
	}

	entry := mkt.Average
	if entry <= 0 {
		entry = mkt.Price
	}
	if entry <= 0 {
		entry = entryHint
	}

	// Tracked before protection exists so an exit can fall back on it.
	m.setActive(&ActivePosition{
		Symbol:       m.cfg.Symbol,
		Side:         side,
		Size:         size,
		EntryPrice:   entry,
		IDs:          IDs{Market: mkt.ID},
		QtyRemaining: size,
		OpenedAt:     m.now(),
	})

	lv, err := m.levels.InitialLevels(ctx, entry, side)
	if err != nil {
		return nil, m.rollback(ctx, "levels", err)
	}

	tp, err := m.gw.PlaceLimit(ctx, side.Opposite(), size, lv.TakeProfit, order.WithReduceOnly())
	if err != nil {
		return nil, m.rollback(ctx, "take_profit", err)
	}
	sl, err := m.gw.PlaceStopLimit(ctx, side.Opposite(), size, lv.StopLoss, lv.StopLoss, order.WithReduceOnly())
	if err != nil {
		return nil, m.rollback(ctx, "stop_loss", err)
	}

	tp0 := lv.TakeProfit
	m.active.CurrentSL = lv.StopLoss
	m.active.TakeProfit = lv.TakeProfit
	m.active.TPInitial = &tp0
	m.active.TrailDist = lv.TrailDist
	m.active.IDs.TakeProfit = tp.ID
	m.active.IDs.StopLoss = sl.ID
	m.setActive(m.active)

	plog := logging.PositionContext(m.logger, m.cfg.Symbol, string(side), entry, size)
	plog.Info().
		Float64("sl", lv.StopLoss).
		Float64("tp", lv.TakeProfit).
		Float64("trail_dist", lv.TrailDist).
		Msg("Position opened")
	metrics.PositionEvents.WithLabelValues("opened").Inc()
	m.publish(events.PositionOpened(m.cfg.Symbol, string(side), entry, size, lv.StopLoss, lv.TakeProfit))

	return m.active.clone(), nil
}

func (m *Manager) rollback(ctx context.Context, stage string, cause error) error {
	m.logger.Error().Err(cause).Str("stage", stage).Msg("Protection failed after fill, flattening")
	failure := fmt.Errorf("%w: %s: %w", ErrUnprotected, stage, cause)
	// Clearing the protective ids makes CheckExit escalate again if the exit fails.
	m.active.IDs.StopLoss, m.active.IDs.TakeProfit = "", ""
	if err := m.emergencyExitLocked(ctx, "unprotected_open"); err != nil {
		return fmt.Errorf("%w; %w", failure, err)
	}
	return failure
}

// ==================== Trailing ====================

// UpdateTrail moves the protective orders for the latest close. Without a
// strategy the stop ratchets to price∓trail on the nearest tick; with one,
// the stop is replaced only when strictly tighter and the take-profit when
// it changed.
func (m *Manager) UpdateTrail(ctx context.Context, lastClose float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.closing {
		return nil
	}
	m.lastPrice = lastClose
	pos := m.active

	tick, err := m.tickSize(ctx)
	if err != nil {
		return err
	}

	if m.strategy == nil {
		raw := lastClose - pos.TrailDist
		if pos.Side == exchange.Sell {
			raw = lastClose + pos.TrailDist
		}
		candidate, err := price.Align(raw, tick, price.Nearest)
		if err != nil {
			return err
		}
		if !favorable(pos.Side, candidate, pos.CurrentSL) {
			m.logger.Debug().Float64("sl", pos.CurrentSL).Float64("candidate", candidate).Msg("Trail condition unmet")
			return nil
		}
		return m.replaceLocked(ctx, legStopLoss, candidate)
	}

	desired, err := m.strategy.ComputeTargets(risk.PositionSnapshot{
		EntryPrice:   pos.EntryPrice,
		CurrentPrice: lastClose,
		QtyOpen:      pos.Size,
		QtyRemaining: pos.Remaining(),
		SLCurrent:    pos.CurrentSL,
		TPCurrent:    pos.TakeProfit,
		TPInitial:    pos.TPInitial,
		TrailDist:    pos.TrailDist,
	}, risk.StrategyContext{Symbol: m.cfg.Symbol, Side: pos.Side, TickSize: tick})
	if err != nil {
		return fmt.Errorf("%s targets: %w", m.strategy.Name(), err)
	}

	if desired.StopLoss > 0 && favorable(pos.Side, desired.StopLoss, pos.CurrentSL) {
		if err := m.replaceLocked(ctx, legStopLoss, desired.StopLoss); err != nil {
			return err
		}
	}
	if m.active != nil && desired.TakeProfit > 0 && desired.TakeProfit != m.active.TakeProfit {
		return m.replaceLocked(ctx, legTakeProfit, desired.TakeProfit)
	}
	return nil
}

// ==================== Exit detection ====================

// CheckExit reconciles with the exchange. No live contracts means the
// position closed; live contracts without either protective order resting
// trigger an emergency exit. Failed queries leave the state for the next call.
func (m *Manager) CheckExit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.closing {
		return nil
	}

	contracts, err := m.liveContracts(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Check exit: positions query failed, retrying next tick")
		return nil
	}
	if contracts == 0 {
		m.logger.Info().Msg("Position closed on exchange")
		m.cancelAllLocked(ctx)
		m.clearLocked("closed")
		return nil
	}

	if remaining := math.Abs(contracts); remaining != m.active.QtyRemaining {
		m.logger.Info().Float64("from", m.active.QtyRemaining).Float64("to", remaining).Msg("Remaining quantity changed")
		m.active.QtyRemaining = remaining
		m.setActive(m.active)
	}

	open, err := m.ex.FetchOpenOrders(ctx, m.cfg.Symbol)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Check exit: open orders query failed, retrying next tick")
		return nil
	}
	ids := m.active.IDs
	slOpen, tpOpen := false, false
	for _, o := range open {
		if ids.StopLoss != "" && o.ID == ids.StopLoss {
			slOpen = true
		}
		if ids.TakeProfit != "" && o.ID == ids.TakeProfit {
			tpOpen = true
		}
	}
	if !slOpen && !tpOpen {
		m.logger.Error().Float64("contracts", contracts).Msg("Position open without SL or TP")
		return m.emergencyExitLocked(ctx, "unprotected")
	}
	return nil
}

// ==================== Helpers ====================

// liveContracts returns the signed contracts for the symbol, zero when flat.
func (m *Manager) liveContracts(ctx context.Context) (float64, error) {
	pos, err := m.findPosition(ctx)
	if err != nil || pos == nil {
		return 0, err
	}
	return pos.Contracts, nil
}

func (m *Manager) findPosition(ctx context.Context) (*exchange.Position, error) {
	positions, err := m.ex.FetchPositions(ctx, m.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	for i := range positions {
		if positions[i].Symbol == m.cfg.Symbol && positions[i].Contracts != 0 {
			return &positions[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) tickSize(ctx context.Context) (float64, error) {
	if m.cfg.TickSize > 0 {
		return m.cfg.TickSize, nil
	}
	if m.tick > 0 {
		return m.tick, nil
	}
	mk, err := m.ex.Market(ctx, m.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", risk.ErrConfiguration, err)
	}
	tick, err := risk.ResolveTickSize(mk)
	if err != nil {
		return 0, err
	}
	m.tick = tick
	return tick, nil
}

// setActive stores p (which may be nil) and refreshes the lock-free view.
func (m *Manager) setActive(p *ActivePosition) {
	m.active = p
	m.view.Store(p.clone())
	m.refreshState()
	if p == nil {
		metrics.SetProtection(0, 0)
	} else {
		metrics.SetProtection(p.CurrentSL, p.TakeProfit)
	}
}

func (m *Manager) refreshState() {
	switch {
	case m.closing:
		m.state.Store(StateClosing)
	case m.active != nil:
		m.state.Store(StateOpen)
	default:
		m.state.Store(StateFlat)
	}
}

// clearLocked drops the position and announces the close.
func (m *Manager) clearLocked(reason string) {
	if pos := m.active; pos != nil {
		exit := m.lastPrice
		if exit == 0 {
			exit = pos.EntryPrice
		}
		metrics.PositionEvents.WithLabelValues("closed").Inc()
		m.publish(events.PositionClosed(m.cfg.Symbol, string(pos.Side), reason, pos.EntryPrice, exit, pos.Remaining()))
	}
	m.setActive(nil)
}

func (m *Manager) publish(e events.Event) {
	if m.publisher == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	m.publisher.Publish(e)
}
