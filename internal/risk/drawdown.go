package risk

import (
	"fmt"
	"sync"
)

// DrawdownAction is what happens when a position gives back too much.
type DrawdownAction string

const (
	DrawdownAlert DrawdownAction = "alert"
	DrawdownExit  DrawdownAction = "exit"
)

// Validate rejects anything but alert or exit.
func (a DrawdownAction) Validate() error {
	if a != DrawdownAlert && a != DrawdownExit {
		return fmt.Errorf("%w: drawdown action must be %q or %q, got %q", ErrInvalidParams, DrawdownAlert, DrawdownExit, string(a))
	}
	return nil
}

// DrawdownTracker follows the best price reached by the open position
// (high water mark for longs, low water mark for shorts) and reports when
// price retreats from it by more than MaxPercent of the entry price.
type DrawdownTracker struct {
	maxPercent float64

	mu    sync.Mutex
	side  string
	entry float64
	peak  float64
}

// NewDrawdownTracker creates a tracker; maxPercent <= 0 disables it.
func NewDrawdownTracker(maxPercent float64) *DrawdownTracker {
	return &DrawdownTracker{maxPercent: maxPercent}
}

// Observe feeds one price for the position (side, entry) and returns whether
// the give-back from the peak exceeds the limit, plus the give-back in percent.
// A different side or entry starts a new position.
func (t *DrawdownTracker) Observe(side string, entry, price float64) (bool, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry <= 0 {
		return false, 0
	}
	if side != t.side || entry != t.entry {
		t.side, t.entry, t.peak = side, entry, entry
	}

	var giveBack float64
	if side == "buy" {
		if price > t.peak {
			t.peak = price
		}
		giveBack = (t.peak - price) / entry * 100
	} else {
		if price < t.peak {
			t.peak = price
		}
		giveBack = (price - t.peak) / entry * 100
	}

	return t.maxPercent > 0 && giveBack > t.maxPercent, giveBack
}

// Peak returns the best price seen for the current position.
func (t *DrawdownTracker) Peak() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Reset forgets the tracked position.
func (t *DrawdownTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.side, t.entry, t.peak = "", 0, 0
}
