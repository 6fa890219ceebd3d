package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/indicators"
)

// ErrInsufficientData is returned when a frame is too short to evaluate.
var ErrInsufficientData = errors.New("insufficient candle data")

// Strategy turns indicator frames into an entry signal.
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// Evaluate inspects the trend frame (15m) and the trigger frame (5m)
	Evaluate(trend, trigger *indicators.Frame) (*Signal, error)
}

type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalNone SignalType = "NONE"
)

type Momentum string

const (
	MomentumUp      Momentum = "up"
	MomentumDown    Momentum = "down"
	MomentumNeutral Momentum = "neutral"
)

// Signal represents a trading signal
type Signal struct {
	Type      SignalType
	Symbol    string
	Price     float64
	Momentum  Momentum
	Cross     int // +1 bullish EMA9/EMA21 cross, -1 bearish, 0 none
	VolumeOK  bool
	RSI       float64
	Reason    string
	Timestamp time.Time
}

// Side maps the signal to an order side; ok is false for SignalNone.
func (s *Signal) Side() (side exchange.Side, ok bool) {
	switch s.Type {
	case SignalBuy:
		return exchange.Buy, true
	case SignalSell:
		return exchange.Sell, true
	}
	return "", false
}

// Details flattens the signal for events and logs.
func (s *Signal) Details() map[string]interface{} {
	return map[string]interface{}{
		"momentum":  string(s.Momentum),
		"cross":     s.Cross,
		"volume_ok": s.VolumeOK,
		"rsi":       s.RSI,
		"reason":    s.Reason,
	}
}

// MomentumCrossConfig configures the momentum/cross strategy
type MomentumCrossConfig struct {
	Symbol        string
	RSILongFloor  float64 // long needs RSI7 above this
	RSIShortCeil  float64 // short needs RSI7 below this
	RequireVolume bool
}

// DefaultMomentumCrossConfig returns the 30/70 RSI bounds without a volume filter.
func DefaultMomentumCrossConfig(symbol string) MomentumCrossConfig {
	return MomentumCrossConfig{Symbol: symbol, RSILongFloor: 30, RSIShortCeil: 70}
}

// MomentumCross goes long when the 15m EMA21 is above EMA50 and the 5m EMA9
// crossed above EMA21 within the last two bars, short on the mirror image.
type MomentumCross struct {
	config MomentumCrossConfig
}

func NewMomentumCross(config MomentumCrossConfig) *MomentumCross {
	return &MomentumCross{config: config}
}

func (s *MomentumCross) Name() string {
	return fmt.Sprintf("MomentumCross-%s", s.config.Symbol)
}

func (s *MomentumCross) Evaluate(trend, trigger *indicators.Frame) (*Signal, error) {
	if trend == nil || trend.Len() < 1 {
		return nil, fmt.Errorf("%w: trend frame has no rows", ErrInsufficientData)
	}
	if trigger == nil || trigger.Len() < 3 {
		return nil, fmt.Errorf("%w: trigger frame needs 3 rows", ErrInsufficientData)
	}

	last := trigger.Last()
	sig := &Signal{
		Type:      SignalNone,
		Symbol:    s.config.Symbol,
		Price:     last.Close,
		Momentum:  MomentumNeutral,
		RSI:       trigger.Value(indicators.RSI7, -1),
		Timestamp: last.Time,
	}

	ema21, ema50 := trend.Value(indicators.EMA21, -1), trend.Value(indicators.EMA50, -1)
	fast := [3]float64{trigger.Value(indicators.EMA9, -3), trigger.Value(indicators.EMA9, -2), trigger.Value(indicators.EMA9, -1)}
	slow := [3]float64{trigger.Value(indicators.EMA21, -3), trigger.Value(indicators.EMA21, -2), trigger.Value(indicators.EMA21, -1)}
	if anyNaN(ema21, ema50, sig.RSI) || anyNaN(fast[:]...) || anyNaN(slow[:]...) {
		sig.Reason = "indicators warming up"
		return sig, nil
	}

	switch {
	case ema21 > ema50:
		sig.Momentum = MomentumUp
	case ema21 < ema50:
		sig.Momentum = MomentumDown
	}
	sig.Cross = cross(fast, slow)
	sig.VolumeOK = last.Volume > trigger.Value(indicators.VolSMA5, -1)

	longOK := sig.Momentum == MomentumUp && sig.Cross == 1 && sig.RSI > s.config.RSILongFloor
	shortOK := sig.Momentum == MomentumDown && sig.Cross == -1 && sig.RSI < s.config.RSIShortCeil
	if s.config.RequireVolume && !sig.VolumeOK {
		longOK, shortOK = false, false
	}

	switch {
	case longOK:
		sig.Type = SignalBuy
		sig.Reason = fmt.Sprintf("15m momentum up, 5m bullish cross, RSI7 %.1f", sig.RSI)
	case shortOK:
		sig.Type = SignalSell
		sig.Reason = fmt.Sprintf("15m momentum down, 5m bearish cross, RSI7 %.1f", sig.RSI)
	default:
		sig.Reason = fmt.Sprintf("momentum %s, cross %d", sig.Momentum, sig.Cross)
	}
	return sig, nil
}

// cross reports +1 when fast closes above slow having been at or below it on
// either of the two previous bars, -1 for the mirror, else 0.
// Index 2 is the last bar.
func cross(fast, slow [3]float64) int {
	if fast[2] > slow[2] && (fast[1] <= slow[1] || fast[0] <= slow[0]) {
		return 1
	}
	if fast[2] < slow[2] && (fast[1] >= slow[1] || fast[0] >= slow[0]) {
		return -1
	}
	return 0
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
