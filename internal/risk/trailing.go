package risk

import (
	"math"

	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/price"
)

// PositionSnapshot is the strategy's read-only view of an open position.
// Zero SLCurrent/TPCurrent mean the order is not placed yet.
type PositionSnapshot struct {
	EntryPrice   float64
	CurrentPrice float64
	QtyOpen      float64
	QtyRemaining float64
	SLCurrent    float64
	TPCurrent    float64
	TPInitial    *float64
	TrailDist    float64
}

// StrategyContext identifies the market the snapshot belongs to.
type StrategyContext struct {
	Symbol   string
	Side     exchange.Side
	TickSize float64
}

// DesiredState is where a strategy wants the protective orders to be.
type DesiredState struct {
	StopLoss   float64
	TakeProfit float64
	Debug      map[string]any
}

// Strategy computes protective targets. Implementations hold no state.
type Strategy interface {
	Name() string
	ComputeTargets(snap PositionSnapshot, sc StrategyContext) (DesiredState, error)
}

// ==================== Trailing SL only ====================

// SLOnly trails the stop by a fixed distance and never moves the take-profit.
type SLOnly struct{}

func (SLOnly) Name() string { return NameSLOnly }

func (SLOnly) ComputeTargets(snap PositionSnapshot, sc StrategyContext) (DesiredState, error) {
	sl, err := trailStop(snap, sc)
	if err != nil {
		return DesiredState{}, err
	}
	return DesiredState{
		StopLoss:   sl,
		TakeProfit: currentTP(snap),
		Debug:      map[string]any{"kind": NameSLOnly},
	}, nil
}

// ==================== Trailing SL with TP bump ====================

// SLAndTPBump trails the stop like SLOnly and, once the stop has passed the
// fraction Theta of the way from entry to the initial take-profit, pushes the
// take-profit further by Rho times the excess.
type SLAndTPBump struct {
	Theta float64
	Rho   float64
}

func (s SLAndTPBump) Name() string { return NameSLAndTP }

func (s SLAndTPBump) ComputeTargets(snap PositionSnapshot, sc StrategyContext) (DesiredState, error) {
	if snap.TPInitial == nil {
		return SLOnly{}.ComputeTargets(snap, sc)
	}

	sl, err := trailStop(snap, sc)
	if err != nil {
		return DesiredState{}, err
	}

	entry, tp0 := snap.EntryPrice, *snap.TPInitial
	tp := currentTP(snap)
	var threshold float64

	if sc.Side == exchange.Buy {
		threshold = entry + s.Theta*(tp0-entry)
		if sl >= threshold {
			bumped := math.Max(tp, tp+s.Rho*(sl-threshold))
			if tp, err = price.Align(bumped, sc.TickSize, price.Up); err != nil {
				return DesiredState{}, err
			}
		}
	} else {
		threshold = entry - s.Theta*(entry-tp0)
		if sl <= threshold {
			bumped := math.Min(tp, tp-s.Rho*(threshold-sl))
			if tp, err = price.Align(bumped, sc.TickSize, price.Down); err != nil {
				return DesiredState{}, err
			}
		}
	}

	return DesiredState{
		StopLoss:   sl,
		TakeProfit: tp,
		Debug: map[string]any{
			"kind":      NameSLAndTP,
			"theta":     s.Theta,
			"rho":       s.Rho,
			"threshold": threshold,
		},
	}, nil
}

// trailStop keeps the stop at least d from price, never loosening it.
func trailStop(snap PositionSnapshot, sc StrategyContext) (float64, error) {
	d := snap.TrailDist
	if sc.Side == exchange.Buy {
		base := snap.SLCurrent
		if base == 0 {
			base = snap.EntryPrice - d
		}
		return price.Align(math.Max(base, snap.CurrentPrice-d), sc.TickSize, price.Up)
	}
	base := snap.SLCurrent
	if base == 0 {
		base = snap.EntryPrice + d
	}
	return price.Align(math.Min(base, snap.CurrentPrice+d), sc.TickSize, price.Down)
}

func currentTP(snap PositionSnapshot) float64 {
	if snap.TPCurrent != 0 || snap.TPInitial == nil {
		return snap.TPCurrent
	}
	return *snap.TPInitial
}
