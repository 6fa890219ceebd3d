// Package indicators computes the technical indicator columns used by the
// entry signal and the volatility-based SL/TP levels.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"futures-trailing-bot/internal/exchange"
)

// Timeframes understood by Compute.
const (
	TF5m  = "5m"
	TF15m = "15m"
)

// Column names.
const (
	EMA9    = "EMA9"
	EMA21   = "EMA21"
	EMA50   = "EMA50"
	RSI7    = "RSI7"
	RSI14   = "RSI14"
	VolSMA5 = "VolSMA5"
	ATR14   = "ATR14"
)

// Frame is a candle series with indicator columns aligned index-for-index.
// Values inside an indicator's warm-up window are NaN.
type Frame struct {
	Candles []exchange.Candle
	Columns map[string][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Candles) }

// Value returns column name at row i, or NaN when either is missing.
// Negative i counts from the end.
func (f *Frame) Value(name string, i int) float64 {
	col, ok := f.Columns[name]
	if !ok {
		return math.NaN()
	}
	if i < 0 {
		i += len(col)
	}
	if i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Last returns the last candle. It panics on an empty frame.
func (f *Frame) Last() exchange.Candle { return f.Candles[len(f.Candles)-1] }

// Compute adds the columns for timeframe: EMA21/EMA50/RSI14 for 15m and
// EMA9/EMA21/RSI7/VolSMA5/ATR14 for anything else.
func Compute(candles []exchange.Candle, timeframe string) *Frame {
	closes, highs, lows, volumes := split(candles)

	f := &Frame{Candles: candles, Columns: make(map[string][]float64)}
	if timeframe == TF15m {
		f.Columns[EMA21] = EMA(closes, 21)
		f.Columns[EMA50] = EMA(closes, 50)
		f.Columns[RSI14] = RSI(closes, 14)
		return f
	}

	f.Columns[EMA9] = EMA(closes, 9)
	f.Columns[EMA21] = EMA(closes, 21)
	f.Columns[RSI7] = RSI(closes, 7)
	f.Columns[VolSMA5] = RollingMean(volumes, 5)
	f.Columns[ATR14] = ATR(highs, lows, closes, 14)
	return f
}

// ==================== Series ====================

// EMA is talib's exponential moving average with the warm-up masked.
func EMA(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nans(len(closes))
	}
	return mask(talib.Ema(closes, period), period-1)
}

// RSI is talib's Wilder RSI with the warm-up masked.
func RSI(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nans(len(closes))
	}
	return mask(talib.Rsi(closes, period), period)
}

// ATR is talib's average true range with the warm-up masked.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nans(len(closes))
	}
	return mask(talib.Atr(highs, lows, closes, period), period)
}

// RollingMean averages the last window values, using a shorter window while
// fewer values are available.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if len(values) >= window {
		copy(out, talib.Sma(values, window))
	}
	sum := 0.0
	for i := 0; i < len(values) && i < window-1; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	return out
}

func split(candles []exchange.Candle) (closes, highs, lows, volumes []float64) {
	closes = make([]float64, len(candles))
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	volumes = make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	return closes, highs, lows, volumes
}

func mask(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
