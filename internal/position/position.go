// Package position owns the single open position of one symbol: it opens it
// with paired protective orders, trails them, detects when they vanish and
// flattens the position when protection cannot be guaranteed.
package position

import (
	"errors"
	"time"

	"futures-trailing-bot/internal/exchange"
)

var (
	// ErrPositionActive is returned by OpenPosition when not flat.
	ErrPositionActive = errors.New("position already active")
	// ErrUnprotected is returned when a fresh position could not be protected
	// and was rolled back.
	ErrUnprotected = errors.New("position could not be protected")
	// ErrEmergencyExitFailure is returned when the closing market order fails
	// while contracts are still open.
	ErrEmergencyExitFailure = errors.New("emergency exit failed")
)

// State is the lifecycle state of the manager.
type State string

const (
	StateFlat    State = "flat"
	StateOpen    State = "open"
	StateClosing State = "closing"
)

// IDs are the exchange ids of the orders backing a position. Market is empty
// for positions reconstructed after a restart.
type IDs struct {
	Market     string `json:"market,omitempty"`
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
}

// ActivePosition is the in-memory record of the open position.
type ActivePosition struct {
	Symbol       string        `json:"symbol"`
	Side         exchange.Side `json:"side"`
	Size         float64       `json:"size"`
	EntryPrice   float64       `json:"entry_price"`
	CurrentSL    float64       `json:"current_sl"`
	TakeProfit   float64       `json:"take_profit"`
	TPInitial    *float64      `json:"tp_initial,omitempty"`
	TrailDist    float64       `json:"trail_dist"`
	IDs          IDs           `json:"ids"`
	QtyRemaining float64       `json:"qty_remaining"`
	OpenedAt     time.Time     `json:"opened_at"`
}

// Remaining is the quantity protective orders should cover.
func (p *ActivePosition) Remaining() float64 {
	if p.QtyRemaining > 0 {
		return p.QtyRemaining
	}
	return p.Size
}

// SignedContracts is the position as the exchange would report it.
func (p *ActivePosition) SignedContracts() float64 {
	if p.Side == exchange.Sell {
		return -p.Remaining()
	}
	return p.Remaining()
}

func (p *ActivePosition) clone() *ActivePosition {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TPInitial != nil {
		v := *p.TPInitial
		cp.TPInitial = &v
	}
	return &cp
}

// favorable reports whether candidate is a strictly tighter stop than current
// for side.
func favorable(side exchange.Side, candidate, current float64) bool {
	if side == exchange.Buy {
		return candidate > current
	}
	return candidate < current
}
