package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/indicators"
	"futures-trailing-bot/internal/position"
	"futures-trailing-bot/internal/risk"
	"futures-trailing-bot/internal/strategy"
)

const symbol = "BTCUSDT"

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type stubStrategy struct {
	signal strategy.SignalType
	calls  int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Evaluate(_, trigger *indicators.Frame) (*strategy.Signal, error) {
	s.calls++
	return &strategy.Signal{Type: s.signal, Symbol: symbol, Price: trigger.Last().Close}, nil
}

type fixedLevels risk.Levels

func (f fixedLevels) InitialLevels(context.Context, float64, exchange.Side) (risk.Levels, error) {
	return risk.Levels(f), nil
}

type gate struct {
	allow bool
	asked int
}

func (g *gate) CanTrade() (bool, string) {
	g.asked++
	return g.allow, "blocked in test"
}

type failingFeed struct{ *exchange.Paper }

func (f failingFeed) FetchOHLCV(context.Context, string, string, int) ([]exchange.Candle, error) {
	return nil, errors.New("feed down")
}

func candles(n int, step time.Duration, close float64) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		out[i] = exchange.Candle{
			Time:   t0.Add(time.Duration(i) * step),
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 10,
		}
	}
	return out
}

type fixture struct {
	paper   *exchange.Paper
	manager *position.Manager
	strat   *stubStrategy
	bot     *TradingBot
	events  []events.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{strat: &stubStrategy{signal: strategy.SignalNone}}

	f.paper = exchange.NewPaper(nil, zerolog.Nop())
	f.paper.SetMarket(exchange.Market{Symbol: symbol, TickSize: 0.1})
	f.paper.SetCandles(symbol, indicators.TF5m, candles(30, 5*time.Minute, 100))
	f.paper.SetCandles(symbol, indicators.TF15m, candles(30, 15*time.Minute, 100))
	f.paper.SetPrice(symbol, 100)

	bus := events.NewSyncEventBus()
	bus.SubscribeAll(func(e events.Event) { f.events = append(f.events, e) })

	f.manager = position.NewManager(position.Config{Symbol: symbol, Leverage: 5}, f.paper,
		fixedLevels{StopLoss: 95, TakeProfit: 110, TrailDist: 5}, position.WithPublisher(bus))

	opts = append([]Option{WithEventBus(bus)}, opts...)
	b, err := NewTradingBot(Config{Symbol: symbol, InvestmentUSD: 1000, Leverage: 5}, f.paper, f.manager, f.strat, opts...)
	require.NoError(t, err)
	f.bot = b
	return f
}

// nextCandle appends one 5m candle closing at close and moves the paper price.
func (f *fixture) nextCandle(close float64) {
	cs := candles(31, 5*time.Minute, 100)
	cs[30].Close = close
	f.paper.SetCandles(symbol, indicators.TF5m, cs)
	f.paper.SetPrice(symbol, close)
}

func TestNewTradingBotValidation(t *testing.T) {
	f := newFixture(t)
	_, err := NewTradingBot(Config{Symbol: symbol, InvestmentUSD: 1000}, nil, f.manager, f.strat)
	assert.Error(t, err)
	_, err = NewTradingBot(Config{InvestmentUSD: 1000}, f.paper, f.manager, f.strat)
	assert.Error(t, err)
	_, err = NewTradingBot(Config{Symbol: symbol}, f.paper, f.manager, f.strat)
	assert.Error(t, err)
}

func TestTickIdleWithoutNewCandle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.bot.Prime(ctx))

	acted, err := f.bot.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, acted)
	assert.Zero(t, f.strat.calls)
	assert.EqualValues(t, 1, f.bot.Status().TickCount)
}

func TestNewCandleOpensPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.bot.Prime(ctx))

	f.strat.signal = strategy.SignalBuy
	f.nextCandle(100)

	acted, err := f.bot.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, acted)

	pos := f.manager.Active()
	require.NotNil(t, pos)
	assert.Equal(t, exchange.Buy, pos.Side)
	assert.InDelta(t, 50.0, pos.Size, 1e-9, "1000 USD at 5x over a 100 close")
	assert.Equal(t, 95.0, pos.CurrentSL)

	status := f.bot.Status()
	assert.Equal(t, position.StateOpen, status.State)
	require.NotNil(t, status.LastSignal)
	assert.Equal(t, strategy.SignalBuy, status.LastSignal.Type)

	var types []events.EventType
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.EventSignalGenerated)
	assert.Contains(t, types, events.EventPositionOpened)
}

func TestEntrySizeFollowsLotStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.paper.SetMarket(exchange.Market{Symbol: symbol, TickSize: 0.1, QtyStep: 0.01, MinQty: 0.01})
	require.NoError(t, f.bot.Prime(ctx))

	f.strat.signal = strategy.SignalBuy
	f.nextCandle(99.7)
	_, err := f.bot.Tick(ctx)
	require.NoError(t, err)

	pos := f.manager.Active()
	require.NotNil(t, pos)
	assert.InDelta(t, 50.15, pos.Size, 1e-9, "5000/99.7 floored to 0.01")
}

func TestEntrySkippedBelowMinimumQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.paper.SetMarket(exchange.Market{Symbol: symbol, TickSize: 0.1, QtyStep: 1, MinQty: 100})
	require.NoError(t, f.bot.Prime(ctx))

	f.strat.signal = strategy.SignalBuy
	f.nextCandle(100)
	acted, err := f.bot.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, acted)
	assert.Nil(t, f.manager.Active())
}

func TestSignalIgnoredWhilePositionHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.bot.Prime(ctx))

	f.strat.signal = strategy.SignalBuy
	f.nextCandle(100)
	_, err := f.bot.Tick(ctx)
	require.NoError(t, err)
	first := f.manager.Active()

	f.strat.signal = strategy.SignalSell
	cs := candles(32, 5*time.Minute, 100)
	f.paper.SetCandles(symbol, indicators.TF5m, cs)

	acted, err := f.bot.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, acted)
	assert.Equal(t, first.IDs, f.manager.Active().IDs)
	assert.Equal(t, exchange.Buy, f.manager.Active().Side)
}

func TestGateBlocksEntry(t *testing.T) {
	ctx := context.Background()
	g := &gate{allow: false}
	f := newFixture(t, WithGate(g))
	require.NoError(t, f.bot.Prime(ctx))

	f.strat.signal = strategy.SignalSell
	f.nextCandle(100)
	_, err := f.bot.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, g.asked)
	assert.Nil(t, f.manager.Active())
}

func TestTickReportsFetchErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := NewTradingBot(Config{Symbol: symbol, InvestmentUSD: 1000}, failingFeed{f.paper}, f.manager, f.strat)
	require.NoError(t, err)

	_, err = b.Tick(ctx)
	assert.ErrorContains(t, err, "feed down")
	assert.Contains(t, b.Status().LastError, "feed down")
	assert.Error(t, b.Start(ctx))
}

func TestStartResumesPositionAndStops(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.paper.SetPosition(exchange.Position{Symbol: symbol, Contracts: 2, EntryPrice: 100})
	_, err := f.paper.CreateOrder(ctx, exchange.OrderRequest{Symbol: symbol, Side: exchange.Sell, Type: exchange.OrderTypeLimit, Amount: 2, Price: 96, StopPrice: 96, ReduceOnly: true})
	require.NoError(t, err)
	_, err = f.paper.CreateOrder(ctx, exchange.OrderRequest{Symbol: symbol, Side: exchange.Sell, Type: exchange.OrderTypeLimit, Amount: 2, Price: 112, ReduceOnly: true})
	require.NoError(t, err)

	require.NoError(t, f.bot.Start(ctx))
	assert.True(t, f.bot.Status().Running)
	pos := f.manager.Active()
	require.NotNil(t, pos)
	assert.Equal(t, 96.0, pos.CurrentSL)
	assert.Equal(t, 112.0, pos.TakeProfit)

	assert.Error(t, f.bot.Start(ctx), "second start is refused")

	f.bot.Stop()
	assert.False(t, f.bot.Status().Running)
	assert.NotNil(t, f.manager.Active(), "stopping leaves the position alone")
	f.bot.Stop()
}
