package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/events"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Entries halted
	StateHalfOpen BreakerState = "half_open" // One trial entry allowed
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour" yaml:"max_loss_per_hour"`           // Max loss % per hour
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"` // Max losing trades in a row
	CooldownMinutes      int     `json:"cooldown_minutes" yaml:"cooldown_minutes"`             // Cooldown after trip
	MaxDailyLoss         float64 `json:"max_daily_loss" yaml:"max_daily_loss"`                 // Max daily loss %
	MaxDailyTrades       int     `json:"max_daily_trades" yaml:"max_daily_trades"`             // Max closed trades per day
}

// DefaultCircuitBreakerConfig returns safe defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:              true,
		MaxLossPerHour:       3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxDailyLoss:         5.0,
		MaxDailyTrades:       50,
	}
}

// CircuitBreaker gates new entries on recent closed-trade results. It never
// touches an open position.
type CircuitBreaker struct {
	config            CircuitBreakerConfig
	state             BreakerState
	consecutiveLosses int
	hourlyLoss        float64
	dailyLoss         float64
	dailyTrades       int
	lastTripTime      time.Time
	hourlyResetTime   time.Time
	dailyResetTime    time.Time
	tripReason        string
	mu                sync.RWMutex

	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithPublisher emits CIRCUIT_BREAKER_TRIPPED events.
func WithPublisher(p events.Publisher) Option {
	return func(cb *CircuitBreaker) { cb.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cb *CircuitBreaker) { cb.logger = l.With().Str("component", "circuit").Logger() }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, opts ...Option) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	cb := &CircuitBreaker{
		config: *config,
		state:  StateClosed,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}

	now := cb.now()
	cb.hourlyResetTime = now.Add(time.Hour)
	cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return cb
}

// Attach records every POSITION_CLOSED event on bus as a trade result.
func (cb *CircuitBreaker) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventPositionClosed, func(e events.Event) {
		pnl, ok := e.Data["pnl_percent"].(float64)
		if !ok {
			cb.logger.Warn().Interface("data", e.Data).Msg("Closed position event without pnl_percent")
			return
		}
		cb.RecordTrade(pnl)
	})
}

// CanTrade checks if a new entry is allowed
func (cb *CircuitBreaker) CanTrade() (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.Enabled {
		return true, ""
	}

	cb.resetCountersIfNeeded()

	if cb.state == StateOpen {
		elapsed := cb.now().Sub(cb.lastTripTime)
		cooldown := time.Duration(cb.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), cb.tripReason)
		}

		// Cooldown passed: allow one trial trade
		cb.state = StateHalfOpen
		cb.consecutiveLosses = 0
		cb.logger.Info().Str("reason", cb.tripReason).Msg("Circuit breaker half-open")
	}

	if cb.config.MaxLossPerHour > 0 && cb.hourlyLoss >= cb.config.MaxLossPerHour {
		return false, fmt.Sprintf("hourly loss limit reached: %.2f%% >= %.2f%%",
			cb.hourlyLoss, cb.config.MaxLossPerHour)
	}

	if cb.config.MaxDailyLoss > 0 && cb.dailyLoss >= cb.config.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached: %.2f%% >= %.2f%%",
			cb.dailyLoss, cb.config.MaxDailyLoss)
	}

	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		return false, fmt.Sprintf("max consecutive losses reached: %d",
			cb.consecutiveLosses)
	}

	if cb.config.MaxDailyTrades > 0 && cb.dailyTrades >= cb.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d trades",
			cb.dailyTrades)
	}

	return true, ""
}

// RecordTrade records a closed trade result in percent of notional
func (cb *CircuitBreaker) RecordTrade(pnlPercent float64) {
	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		cb.logger.Warn().Float64("pnl_percent", pnlPercent).Msg("Ignoring invalid trade result")
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.Enabled {
		return
	}

	cb.resetCountersIfNeeded()
	cb.dailyTrades++

	if pnlPercent < 0 {
		cb.consecutiveLosses++
		cb.hourlyLoss += -pnlPercent
		cb.dailyLoss += -pnlPercent
		if cb.state == StateHalfOpen {
			cb.trip("loss during half-open trial")
			return
		}
	} else {
		cb.consecutiveLosses = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.tripReason = ""
			cb.logger.Info().Msg("Circuit breaker closed after winning trial trade")
		}
	}

	cb.checkAndTrip()
}

// checkAndTrip trips the breaker if any loss limit is reached
func (cb *CircuitBreaker) checkAndTrip() {
	var reason string

	switch {
	case cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses:
		reason = fmt.Sprintf("consecutive losses: %d", cb.consecutiveLosses)
	case cb.config.MaxLossPerHour > 0 && cb.hourlyLoss >= cb.config.MaxLossPerHour:
		reason = fmt.Sprintf("hourly loss: %.2f%%", cb.hourlyLoss)
	case cb.config.MaxDailyLoss > 0 && cb.dailyLoss >= cb.config.MaxDailyLoss:
		reason = fmt.Sprintf("daily loss: %.2f%%", cb.dailyLoss)
	}

	if reason != "" && cb.state != StateOpen {
		cb.trip(reason)
	}
}

// trip opens the circuit breaker
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason

	cb.logger.Warn().
		Str("reason", reason).
		Int("consecutive_losses", cb.consecutiveLosses).
		Float64("hourly_loss", cb.hourlyLoss).
		Float64("daily_loss", cb.dailyLoss).
		Msg("Circuit breaker tripped")

	if cb.publisher != nil {
		cb.publisher.Publish(events.Event{
			Type: events.EventCircuitTripped,
			Data: map[string]interface{}{
				"reason":             reason,
				"consecutive_losses": cb.consecutiveLosses,
				"hourly_loss":        cb.hourlyLoss,
				"daily_loss":         cb.dailyLoss,
				"cooldown_minutes":   cb.config.CooldownMinutes,
			},
		})
	}
}

// resetCountersIfNeeded resets time-based counters
func (cb *CircuitBreaker) resetCountersIfNeeded() {
	now := cb.now()

	if now.After(cb.hourlyResetTime) {
		cb.hourlyLoss = 0
		cb.hourlyResetTime = now.Add(time.Hour)
	}

	if now.After(cb.dailyResetTime) {
		cb.dailyLoss = 0
		cb.dailyTrades = 0
		cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// ForceReset manually resets the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutiveLosses = 0
	cb.tripReason = ""
	cb.logger.Info().Msg("Circuit breaker manually reset")
}

// GetState returns current breaker state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"enabled":            cb.config.Enabled,
		"state":              string(cb.state),
		"consecutive_losses": cb.consecutiveLosses,
		"hourly_loss":        cb.hourlyLoss,
		"daily_loss":         cb.dailyLoss,
		"daily_trades":       cb.dailyTrades,
		"trip_reason":        cb.tripReason,
		"last_trip_time":     cb.lastTripTime,
	}
}
