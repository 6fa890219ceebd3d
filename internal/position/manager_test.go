package position

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/order"
	"futures-trailing-bot/internal/risk"
)

const symbol = "BTCUSDT"

// faultyExchange is a paper venue with injectable failures and a log of
// every order request.
type faultyExchange struct {
	*exchange.Paper

	mu             sync.Mutex
	requests       []exchange.OrderRequest
	failCreate     func(req exchange.OrderRequest) error
	failCancel     func(id string) error
	failPositions  error
	failOpenOrders error
}

func newFaulty(price float64) *faultyExchange {
	p := exchange.NewPaper(nil, zerolog.Nop())
	p.SetMarket(exchange.Market{Symbol: symbol, TickSize: 0.05})
	p.SetPrice(symbol, price)
	return &faultyExchange{Paper: p}
}

func (f *faultyExchange) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.failCreate
	f.mu.Unlock()
	if fail != nil {
		if err := fail(req); err != nil {
			return nil, err
		}
	}
	return f.Paper.CreateOrder(ctx, req)
}

func (f *faultyExchange) CancelOrder(ctx context.Context, id, sym string) (*exchange.Order, error) {
	if f.failCancel != nil {
		if err := f.failCancel(id); err != nil {
			return nil, err
		}
	}
	return f.Paper.CancelOrder(ctx, id, sym)
}

func (f *faultyExchange) FetchPositions(ctx context.Context, symbols ...string) ([]exchange.Position, error) {
	if f.failPositions != nil {
		return nil, f.failPositions
	}
	return f.Paper.FetchPositions(ctx, symbols...)
}

func (f *faultyExchange) FetchOpenOrders(ctx context.Context, sym string) ([]exchange.Order, error) {
	if f.failOpenOrders != nil {
		return nil, f.failOpenOrders
	}
	return f.Paper.FetchOpenOrders(ctx, sym)
}

// closingMarkets counts reduce-only market orders.
func (f *faultyExchange) closingMarkets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Type == exchange.OrderTypeMarket && r.ReduceOnly {
			n++
		}
	}
	return n
}

func (f *faultyExchange) lastRequest() exchange.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fixedLevels struct {
	levels risk.Levels
	err    error
}

func (f fixedLevels) InitialLevels(context.Context, float64, exchange.Side) (risk.Levels, error) {
	return f.levels, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newManager(t *testing.T, ex exchange.Exchange, lv risk.Levels, opts ...Option) (*Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	bus := events.NewSyncEventBus()
	bus.SubscribeAll(func(e events.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, e)
		rec.mu.Unlock()
	})
	opts = append([]Option{WithPublisher(bus)}, opts...)
	return NewManager(Config{Symbol: symbol, Leverage: 8}, ex, fixedLevels{levels: lv}, opts...), rec
}

var longLevels = risk.Levels{StopLoss: 95, TakeProfit: 110, TrailDist: 5}

func bump(t *testing.T) Option {
	t.Helper()
	s, err := risk.NewStrategy(risk.NameSLAndTP, risk.Params{})
	require.NoError(t, err)
	return WithStrategy(s)
}

// ==================== Open ====================

func TestOpenPositionPlacesProtection(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, rec := newManager(t, ex, longLevels)

	pos, err := m.OpenPosition(ctx, exchange.Buy, 99.5, 1)
	require.NoError(t, err)

	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, 100.0, pos.EntryPrice, "entry comes from the fill, not the hint")
	assert.Equal(t, 95.0, pos.CurrentSL)
	assert.Equal(t, 110.0, pos.TakeProfit)
	require.NotNil(t, pos.TPInitial)
	assert.Equal(t, 110.0, *pos.TPInitial)
	assert.NotEmpty(t, pos.IDs.Market)

	open, err := ex.FetchOpenOrders(ctx, symbol)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, pos.IDs.TakeProfit, open[0].ID)
	assert.Equal(t, pos.IDs.StopLoss, open[1].ID)
	for _, o := range open {
		assert.Equal(t, exchange.Sell, o.Side)
		assert.True(t, o.ReduceOnly)
	}
	assert.Equal(t, 95.0, open[1].StopPrice)
	assert.Equal(t, 8, ex.requests[0].Leverage)
	assert.Equal(t, []events.EventType{events.EventPositionOpened}, rec.types())
}

func TestOpenPositionValidation(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, "up", 100, 1)
	assert.ErrorIs(t, err, order.ErrInvalidArgument)
	_, err = m.OpenPosition(ctx, exchange.Buy, 100, 0)
	assert.ErrorIs(t, err, order.ErrInvalidArgument)
	_, err = m.OpenPosition(ctx, exchange.Buy, -1, 1)
	assert.ErrorIs(t, err, order.ErrInvalidArgument)
	assert.Empty(t, ex.requests)

	_, err = m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	_, err = m.OpenPosition(ctx, exchange.Sell, 100, 1)
	assert.ErrorIs(t, err, ErrPositionActive)
}

func TestOpenThenCheckExitStaysOpen(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	before, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	require.NoError(t, m.CheckExit(ctx))

	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, before, m.Active())
	assert.Zero(t, ex.closingMarkets())
}

func TestOpenRollsBackWhenStopLossFails(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	ex.failCreate = func(req exchange.OrderRequest) error {
		if req.StopPrice > 0 {
			return errors.New("stop placement refused")
		}
		return nil
	}
	m, rec := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.ErrorIs(t, err, ErrUnprotected)
	assert.ErrorContains(t, err, "stop placement refused")

	assert.Nil(t, m.Active())
	assert.Equal(t, StateFlat, m.State())
	assert.Equal(t, 1, ex.closingMarkets())

	positions, _ := ex.Paper.FetchPositions(ctx, symbol)
	assert.Empty(t, positions)
	open, _ := ex.Paper.FetchOpenOrders(ctx, symbol)
	assert.Empty(t, open, "take-profit is removed with the position")
	assert.Contains(t, rec.types(), events.EventEmergencyExit)
}

func TestOpenRollsBackWhenTakeProfitFails(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	ex.failCreate = func(req exchange.OrderRequest) error {
		if req.Type == exchange.OrderTypeLimit && req.StopPrice == 0 {
			return exchange.ErrInvalidOrder
		}
		return nil
	}
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.ErrorIs(t, err, ErrUnprotected)
	assert.Nil(t, m.Active())
	assert.Equal(t, 1, ex.closingMarkets())
}

func TestOpenRollsBackWhenLevelsFail(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m := NewManager(Config{Symbol: symbol}, ex, fixedLevels{err: risk.ErrConfiguration})

	_, err := m.OpenPosition(ctx, exchange.Sell, 100, 2)
	require.ErrorIs(t, err, ErrUnprotected)
	assert.ErrorIs(t, err, risk.ErrConfiguration)
	assert.Nil(t, m.Active())
	assert.Equal(t, exchange.Buy, ex.lastRequest().Side)
}

func TestFailedRollbackKeepsStateForRetry(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	ex.failCreate = func(req exchange.OrderRequest) error {
		if req.StopPrice > 0 || req.ReduceOnly && req.Type == exchange.OrderTypeMarket {
			return errors.New("exchange down")
		}
		return nil
	}
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.ErrorIs(t, err, ErrUnprotected)
	require.ErrorIs(t, err, ErrEmergencyExitFailure)

	active := m.Active()
	require.NotNil(t, active, "position is still live")
	assert.Empty(t, active.IDs.StopLoss)
	assert.Empty(t, active.IDs.TakeProfit)

	// once the exchange recovers the next check flattens it
	ex.failCreate = nil
	require.NoError(t, m.CheckExit(ctx))
	assert.Nil(t, m.Active())
	positions, _ := ex.Paper.FetchPositions(ctx, symbol)
	assert.Empty(t, positions)
}

// ==================== Trailing ====================

func TestBumpScenario(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, rec := newManager(t, ex, longLevels, bump(t))

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	require.NoError(t, m.UpdateTrail(ctx, 116))
	pos := m.Active()
	assert.InDelta(t, 111.0, pos.CurrentSL, 1e-9)
	// threshold 105, excess 6
	assert.InDelta(t, 116.0, pos.TakeProfit, 1e-9)
	assert.Equal(t, 110.0, *pos.TPInitial)

	open, _ := ex.FetchOpenOrders(ctx, symbol)
	require.Len(t, open, 2)
	byID := map[string]exchange.Order{}
	for _, o := range open {
		byID[o.ID] = o
	}
	assert.Equal(t, 111.0, byID[pos.IDs.StopLoss].StopPrice)
	assert.Equal(t, 116.0, byID[pos.IDs.TakeProfit].Price)
	assert.Contains(t, rec.types(), events.EventStopLossMoved)
	assert.Contains(t, rec.types(), events.EventTakeProfitMoved)
}

func TestNoBumpAtExactThreshold(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, risk.Levels{StopLoss: 95, TakeProfit: 120, TrailDist: 5}, bump(t))

	opened, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	// sl lands on 110, exactly the threshold: bump of zero
	require.NoError(t, m.UpdateTrail(ctx, 115))
	pos := m.Active()
	assert.InDelta(t, 110.0, pos.CurrentSL, 1e-9)
	assert.Equal(t, 120.0, pos.TakeProfit)
	assert.Equal(t, opened.IDs.TakeProfit, pos.IDs.TakeProfit)
}

func TestSmallMoveDoesNotTouchOrders(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, risk.Levels{StopLoss: 90, TakeProfit: 110, TrailDist: 10}, bump(t))

	opened, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	n := len(ex.requests)

	require.NoError(t, m.UpdateTrail(ctx, 90.2))
	assert.Equal(t, opened, m.Active())
	assert.Len(t, ex.requests, n)
}

func TestShortBumpMirror(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, risk.Levels{StopLoss: 110, TakeProfit: 80, TrailDist: 5}, bump(t))

	_, err := m.OpenPosition(ctx, exchange.Sell, 100, 1)
	require.NoError(t, err)

	require.NoError(t, m.UpdateTrail(ctx, 84))
	pos := m.Active()
	assert.InDelta(t, 89.0, pos.CurrentSL, 1e-9)
	assert.InDelta(t, 79.0, pos.TakeProfit, 1e-9)
	assert.Equal(t, exchange.Buy, ex.lastRequest().Side)
}

func TestRatchetIsMonotone(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	prev := m.Active().CurrentSL
	for _, p := range []float64{101, 103, 103, 102.5, 106, 104, 110} {
		require.NoError(t, m.UpdateTrail(ctx, p))
		sl := m.Active().CurrentSL
		assert.GreaterOrEqual(t, sl, prev, "price %v", p)
		prev = sl
	}
	assert.InDelta(t, 105.0, prev, 1e-9)
}

func TestShortRatchetIsMonotone(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, risk.Levels{StopLoss: 105, TakeProfit: 90, TrailDist: 5})

	_, err := m.OpenPosition(ctx, exchange.Sell, 100, 1)
	require.NoError(t, err)

	prev := m.Active().CurrentSL
	for _, p := range []float64{99, 97, 98, 95, 96} {
		require.NoError(t, m.UpdateTrail(ctx, p))
		sl := m.Active().CurrentSL
		assert.LessOrEqual(t, sl, prev, "price %v", p)
		prev = sl
	}
	assert.InDelta(t, 100.0, prev, 1e-9)
}

func TestReplaceUsesRemainingQuantity(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	ex.Paper.SetPosition(exchange.Position{Symbol: symbol, Contracts: 0.4, EntryPrice: 100})
	require.NoError(t, m.CheckExit(ctx))
	assert.Equal(t, 0.4, m.Active().QtyRemaining)

	require.NoError(t, m.UpdateTrail(ctx, 104))
	last := ex.lastRequest()
	assert.Equal(t, 99.0, last.StopPrice)
	assert.Equal(t, 0.4, last.Amount)
}

func TestCancelFailureDuringReplaceExits(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	opened, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	ex.failCancel = func(id string) error {
		if id == opened.IDs.StopLoss {
			return errors.New("gateway timeout")
		}
		return nil
	}
	err = m.UpdateTrail(ctx, 104)
	require.Error(t, err)
	assert.Nil(t, m.Active())
	assert.Equal(t, 1, ex.closingMarkets())
}

func TestBenignCancelDuringReplaceProceeds(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	opened, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	_, err = ex.Paper.CancelOrder(ctx, opened.IDs.StopLoss, symbol)
	require.NoError(t, err)

	require.NoError(t, m.UpdateTrail(ctx, 104))
	pos := m.Active()
	require.NotNil(t, pos)
	assert.Equal(t, 99.0, pos.CurrentSL)
	assert.NotEqual(t, opened.IDs.StopLoss, pos.IDs.StopLoss)
}

func TestPlacementFailureAfterCancelExits(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	ex.failCreate = func(req exchange.OrderRequest) error {
		if req.StopPrice > 0 {
			return errors.New("rejected")
		}
		return nil
	}
	require.Error(t, m.UpdateTrail(ctx, 104))
	assert.Nil(t, m.Active())
	positions, _ := ex.Paper.FetchPositions(ctx, symbol)
	assert.Empty(t, positions)
}

// ==================== Exit detection ====================

func TestUnprotectedPositionIsExited(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, rec := newManager(t, ex, longLevels)

	opened, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	for _, id := range []string{opened.IDs.StopLoss, opened.IDs.TakeProfit} {
		_, err := ex.Paper.CancelOrder(ctx, id, symbol)
		require.NoError(t, err)
	}

	require.NoError(t, m.CheckExit(ctx))
	assert.Nil(t, m.Active())
	assert.Equal(t, StateFlat, m.State())
	assert.Equal(t, 1, ex.closingMarkets())
	assert.Equal(t, exchange.Sell, ex.lastRequest().Side)
	assert.Contains(t, rec.types(), events.EventEmergencyExit)
	assert.Contains(t, rec.types(), events.EventPositionClosed)
}

func TestStopFillClosesPosition(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, rec := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	ex.Paper.SetPrice(symbol, 94)
	require.NoError(t, m.CheckExit(ctx))

	assert.Nil(t, m.Active())
	assert.Zero(t, ex.closingMarkets())
	open, _ := ex.Paper.FetchOpenOrders(ctx, symbol)
	assert.Empty(t, open)
	assert.Equal(t, events.EventPositionClosed, rec.types()[len(rec.types())-1])
}

func TestCheckExitKeepsStateOnQueryFailure(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	ex.failPositions = errors.New("timeout")
	require.NoError(t, m.CheckExit(ctx))
	assert.NotNil(t, m.Active())

	ex.failPositions = nil
	ex.failOpenOrders = errors.New("timeout")
	require.NoError(t, m.CheckExit(ctx))
	assert.NotNil(t, m.Active())
	assert.Zero(t, ex.closingMarkets())
}

// ==================== Emergency exit ====================

func TestConcurrentEmergencyExitSendsOneOrder(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.EmergencyExit(ctx, "operator"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ex.closingMarkets())
	assert.Nil(t, m.Active())
}

func TestEmergencyExitPurgesReduceOnlyFirst(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, risk.Levels{StopLoss: 105, TakeProfit: 90, TrailDist: 5})

	_, err := m.OpenPosition(ctx, exchange.Sell, 100, 2)
	require.NoError(t, err)
	stray, err := ex.Paper.CreateOrder(ctx, exchange.OrderRequest{Symbol: symbol, Type: exchange.OrderTypeLimit, Side: exchange.Sell, Amount: 1, Price: 150})
	require.NoError(t, err)

	require.NoError(t, m.EmergencyExit(ctx, "operator"))

	last := ex.lastRequest()
	assert.Equal(t, exchange.Buy, last.Side)
	assert.Equal(t, 2.0, last.Amount)
	assert.True(t, last.ReduceOnly)

	open, _ := ex.Paper.FetchOpenOrders(ctx, symbol)
	assert.Empty(t, open, "stray order %s is cancelled too", stray.ID)
}

func TestEmergencyExitWhenAlreadyFlat(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	ex.Paper.SetPosition(exchange.Position{Symbol: symbol})

	require.NoError(t, m.EmergencyExit(ctx, "operator"))
	assert.Zero(t, ex.closingMarkets())
	assert.Nil(t, m.Active())
	open, _ := ex.Paper.FetchOpenOrders(ctx, symbol)
	assert.Empty(t, open)
}

func TestEmergencyExitFailureIsReported(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	_, err := m.OpenPosition(ctx, exchange.Buy, 100, 1)
	require.NoError(t, err)
	ex.failCreate = func(req exchange.OrderRequest) error {
		if req.Type == exchange.OrderTypeMarket {
			return errors.New("insufficient margin")
		}
		return nil
	}

	err = m.EmergencyExit(ctx, "operator")
	require.ErrorIs(t, err, ErrEmergencyExitFailure)
	assert.NotNil(t, m.Active())
	assert.Equal(t, StateOpen, m.State())
}

// ==================== Reconstruction ====================

func TestLoadActiveRebuildsShort(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	ex.Paper.SetPosition(exchange.Position{Symbol: symbol, Contracts: -2, EntryPrice: 100})
	sl, err := ex.Paper.CreateOrder(ctx, exchange.OrderRequest{Symbol: symbol, Type: exchange.OrderTypeLimit, Side: exchange.Buy, Amount: 2, Price: 105.5, StopPrice: 105, ReduceOnly: true})
	require.NoError(t, err)
	tp, err := ex.Paper.CreateOrder(ctx, exchange.OrderRequest{Symbol: symbol, Type: exchange.OrderTypeLimit, Side: exchange.Buy, Amount: 2, Price: 90, ReduceOnly: true})
	require.NoError(t, err)

	m, _ := newManager(t, ex, longLevels)
	require.True(t, m.LoadActive(ctx))

	pos := m.Active()
	assert.Equal(t, exchange.Sell, pos.Side)
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 105.0, pos.CurrentSL)
	assert.Equal(t, 90.0, pos.TakeProfit)
	assert.Equal(t, 5.0, pos.TrailDist)
	assert.Nil(t, pos.TPInitial)
	assert.Empty(t, pos.IDs.Market)
	assert.Equal(t, IDs{StopLoss: sl.ID, TakeProfit: tp.ID}, pos.IDs)
}

func TestLoadActiveStaysFlat(t *testing.T) {
	ctx := context.Background()

	t.Run("only a stop resting", func(t *testing.T) {
		ex := newFaulty(100)
		ex.Paper.SetPosition(exchange.Position{Symbol: symbol, Contracts: 1, EntryPrice: 100})
		_, err := ex.Paper.CreateOrder(ctx, exchange.OrderRequest{Symbol: symbol, Type: exchange.OrderTypeLimit, Side: exchange.Sell, Amount: 1, Price: 95, StopPrice: 95, ReduceOnly: true})
		require.NoError(t, err)
		m, _ := newManager(t, ex, longLevels)
		assert.False(t, m.LoadActive(ctx))
	})

	t.Run("orders without contracts", func(t *testing.T) {
		ex := newFaulty(100)
		for _, req := range []exchange.OrderRequest{
			{Symbol: symbol, Type: exchange.OrderTypeLimit, Side: exchange.Sell, Amount: 1, Price: 95, StopPrice: 95},
			{Symbol: symbol, Type: exchange.OrderTypeLimit, Side: exchange.Sell, Amount: 1, Price: 110},
		} {
			_, err := ex.Paper.CreateOrder(ctx, req)
			require.NoError(t, err)
		}
		m, _ := newManager(t, ex, longLevels)
		assert.False(t, m.LoadActive(ctx))
	})

	t.Run("query failure", func(t *testing.T) {
		ex := newFaulty(100)
		ex.failOpenOrders = errors.New("timeout")
		m, _ := newManager(t, ex, longLevels)
		assert.False(t, m.LoadActive(ctx))
		assert.Equal(t, StateFlat, m.State())
	})
}

func TestFlatOperationsAreNoops(t *testing.T) {
	ctx := context.Background()
	ex := newFaulty(100)
	m, _ := newManager(t, ex, longLevels)

	require.NoError(t, m.UpdateTrail(ctx, 120))
	require.NoError(t, m.CheckExit(ctx))
	m.Watchdog(ctx, 1)
	assert.Empty(t, ex.requests)
	assert.Nil(t, m.Active())
}
