// Package risk computes protective price levels and the trailing strategies
// that move them while a position is open.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/indicators"
	"futures-trailing-bot/internal/price"
)

const (
	// DefaultATRMultiplier scales ATR into the trailing distance.
	DefaultATRMultiplier = 1.5
	// DefaultATRPeriod is the ATR window on the 5m frame.
	DefaultATRPeriod = 14
	// DefaultLookback is how many 5m candles are fetched for ATR.
	DefaultLookback = 100

	levelsTimeframe = indicators.TF5m
)

var (
	// ErrConfiguration is returned when market metadata cannot yield a tick size.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidParams is returned for out-of-range strategy or level inputs.
	ErrInvalidParams = errors.New("invalid parameters")
)

// Levels are the initial protective prices for a fresh position.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	TrailDist  float64 `json:"trail_dist"`
}

// ComputeInitial places the stop one trailing distance from entry and the
// take-profit two distances away, both rounded away from entry.
// A non-positive atrMultiplier falls back to DefaultATRMultiplier.
func ComputeInitial(entry float64, side exchange.Side, volatility, tick, atrMultiplier float64) (Levels, error) {
	if err := side.Validate(); err != nil {
		return Levels{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if entry <= 0 {
		return Levels{}, fmt.Errorf("%w: entry must be positive, got %v", ErrInvalidParams, entry)
	}
	if volatility <= 0 || math.IsNaN(volatility) {
		return Levels{}, fmt.Errorf("%w: volatility must be positive, got %v", ErrInvalidParams, volatility)
	}
	if atrMultiplier <= 0 {
		atrMultiplier = DefaultATRMultiplier
	}

	d := volatility * atrMultiplier
	slDir, tpDir := price.Down, price.Up
	slRaw, tpRaw := entry-d, entry+2*d
	if side == exchange.Sell {
		slDir, tpDir = price.Up, price.Down
		slRaw, tpRaw = entry+d, entry-2*d
	}

	sl, err := price.Align(slRaw, tick, slDir)
	if err != nil {
		return Levels{}, err
	}
	tp, err := price.Align(tpRaw, tick, tpDir)
	if err != nil {
		return Levels{}, err
	}
	return Levels{StopLoss: sl, TakeProfit: tp, TrailDist: d}, nil
}

// ResolveTickSize picks the smallest price increment from market metadata:
// explicit tick size, then 10^-precision, then price step.
func ResolveTickSize(m *exchange.Market) (float64, error) {
	if m == nil {
		return 0, fmt.Errorf("%w: no market metadata", ErrConfiguration)
	}
	if m.TickSize > 0 {
		return m.TickSize, nil
	}
	if m.PricePrecision != nil {
		return math.Pow10(-*m.PricePrecision), nil
	}
	if m.PriceStep > 0 {
		return m.PriceStep, nil
	}
	return 0, fmt.Errorf("%w: cannot determine tick size for %s", ErrConfiguration, m.Symbol)
}

// ==================== Volatility levels source ====================

// VolatilityLevels derives initial levels from the latest 5m ATR.
type VolatilityLevels struct {
	Exchange      exchange.Exchange
	Symbol        string
	ATRMultiplier float64
	ATRPeriod     int
	Lookback      int
	// TickOverride replaces the exchange tick size when positive.
	TickOverride float64
}

// InitialLevels fetches candles and market metadata and computes levels for
// a position entered at entry.
func (v *VolatilityLevels) InitialLevels(ctx context.Context, entry float64, side exchange.Side) (Levels, error) {
	period := v.ATRPeriod
	if period <= 0 {
		period = DefaultATRPeriod
	}
	lookback := v.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	candles, err := v.Exchange.FetchOHLCV(ctx, v.Symbol, levelsTimeframe, lookback)
	if err != nil {
		return Levels{}, fmt.Errorf("fetch %s candles: %w", levelsTimeframe, err)
	}
	vol, err := lastATR(candles, period)
	if err != nil {
		return Levels{}, err
	}

	tick, err := v.tickSize(ctx)
	if err != nil {
		return Levels{}, err
	}
	return ComputeInitial(entry, side, vol, tick, v.ATRMultiplier)
}

func (v *VolatilityLevels) tickSize(ctx context.Context) (float64, error) {
	if v.TickOverride > 0 {
		return v.TickOverride, nil
	}
	m, err := v.Exchange.Market(ctx, v.Symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return ResolveTickSize(m)
}

func lastATR(candles []exchange.Candle, period int) (float64, error) {
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	atr := indicators.ATR(highs, lows, closes, period)
	if len(atr) == 0 || math.IsNaN(atr[len(atr)-1]) {
		return 0, fmt.Errorf("%w: need more than %d candles for ATR, got %d", ErrInvalidParams, period, len(candles))
	}
	return atr[len(atr)-1], nil
}
