// Package price snaps prices to an exchange tick grid.
package price

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Direction selects how an off-grid price is moved onto the grid.
type Direction int

const (
	Down Direction = iota
	Up
	Nearest
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	case Nearest:
		return "nearest"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTick is returned when the tick size is zero or negative.
	ErrInvalidTick = errors.New("tick size must be positive")
	// ErrInvalidPrice is returned by ComputeSize for a non-positive price.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrNotFinite is returned for NaN or infinite inputs.
	ErrNotFinite = errors.New("value is not finite")
	// ErrBelowMinQty is returned by FloorQuantity when nothing tradable is left.
	ErrBelowMinQty = errors.New("quantity below exchange minimum")
)

// gridSnap is how close (in ticks) a quotient must be to an integer to be
// treated as already on the grid.
var gridSnap = decimal.New(1, -6)

const outputPlaces = 12

// Align returns price moved onto the tick grid in direction dir.
func Align(p, tick float64, dir Direction) (float64, error) {
	if tick <= 0 || !finite(tick) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidTick, tick)
	}
	if !finite(p) {
		return 0, fmt.Errorf("%w: price %v", ErrNotFinite, p)
	}

	t := decimal.NewFromFloat(tick)
	q := decimal.NewFromFloat(p).DivRound(t, 16)

	nearest := q.Round(0)
	if q.Sub(nearest).Abs().LessThanOrEqual(gridSnap) {
		q = nearest
	}

	var steps decimal.Decimal
	switch dir {
	case Up:
		steps = q.Ceil()
	case Down:
		steps = q.Floor()
	default:
		steps = q.Round(0)
	}

	out, _ := steps.Mul(t).Round(outputPlaces).Float64()
	return out, nil
}

// ComputeSize converts a quote-currency budget into contracts.
func ComputeSize(investmentUSD, leverage, p float64) (float64, error) {
	if !finite(investmentUSD) || !finite(leverage) || !finite(p) {
		return 0, fmt.Errorf("%w: investment %v, leverage %v, price %v", ErrNotFinite, investmentUSD, leverage, p)
	}
	if p <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidPrice, p)
	}
	return investmentUSD * leverage / p, nil
}

// FloorQuantity rounds qty down to the lot step and enforces minQty.
// A zero step leaves qty unchanged.
func FloorQuantity(qty, step, minQty float64) (float64, error) {
	if !finite(qty) {
		return 0, fmt.Errorf("%w: quantity %v", ErrNotFinite, qty)
	}
	out := qty
	if step > 0 {
		var err error
		if out, err = Align(qty, step, Down); err != nil {
			return 0, err
		}
	}
	if out <= 0 || out < minQty {
		return 0, fmt.Errorf("%w: %v floors to %v, minimum %v", ErrBelowMinQty, qty, out, minQty)
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
