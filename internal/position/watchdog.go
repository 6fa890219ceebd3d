package position

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/metrics"
	"futures-trailing-bot/internal/risk"
)

// Rule is one watchdog check. Condition must not call the exchange; Action
// runs while the manager lock is held and must use RuleContext to act.
type Rule struct {
	Name      string
	Condition func(pos ActivePosition, price float64) bool
	Action    func(ctx context.Context, rc RuleContext) error
}

// RuleContext is what a firing rule may see and do.
type RuleContext struct {
	Rule     string
	Position ActivePosition
	Price    float64
	Logger   zerolog.Logger

	m *Manager
}

// EmergencyExit flattens the position from inside a rule.
func (rc RuleContext) EmergencyExit(ctx context.Context, reason string) error {
	return rc.m.emergencyExitLocked(ctx, reason)
}

// Publish emits an event through the manager's publisher.
func (rc RuleContext) Publish(e events.Event) { rc.m.publish(e) }

// DrawdownPolicy decides when a position has given back too much and what
// to do about it.
type DrawdownPolicy interface {
	Breached(pos ActivePosition, price float64) bool
	Handle(ctx context.Context, rc RuleContext) error
}

// DefaultRules returns sl_breach, tp_breach and drawdown, in that order.
// A nil policy disables the drawdown rule.
func DefaultRules(policy DrawdownPolicy) []Rule {
	return []Rule{
		{
			Name:      "sl_breach",
			Condition: slBreached,
			Action: func(ctx context.Context, rc RuleContext) error {
				return rc.EmergencyExit(ctx, "sl_breach")
			},
		},
		{
			Name:      "tp_breach",
			Condition: tpBreached,
			Action: func(_ context.Context, rc RuleContext) error {
				rc.Logger.Info().Float64("tp", rc.Position.TakeProfit).Float64("price", rc.Price).Msg("TP level breached")
				return nil
			},
		},
		{
			Name: "drawdown",
			Condition: func(pos ActivePosition, price float64) bool {
				return policy != nil && policy.Breached(pos, price)
			},
			Action: func(ctx context.Context, rc RuleContext) error {
				return policy.Handle(ctx, rc)
			},
		},
	}
}

func slBreached(pos ActivePosition, price float64) bool {
	if pos.CurrentSL <= 0 {
		return false
	}
	if pos.Side == exchange.Buy {
		return price <= pos.CurrentSL
	}
	return price >= pos.CurrentSL
}

func tpBreached(pos ActivePosition, price float64) bool {
	if pos.TakeProfit <= 0 {
		return false
	}
	if pos.Side == exchange.Buy {
		return price >= pos.TakeProfit
	}
	return price <= pos.TakeProfit
}

// Watchdog evaluates the rules in order against price. Each rule runs in its
// own boundary: errors and panics are logged and the next rule still runs.
// Evaluation stops once the position is gone.
func (m *Manager) Watchdog(ctx context.Context, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.closing {
		return
	}
	m.lastPrice = price

	for _, r := range m.rules {
		if m.active == nil {
			return
		}
		if err := m.runRule(ctx, r, price); err != nil {
			m.logger.Error().Err(err).Str("rule", r.Name).Float64("price", price).Msg("Watchdog rule failed")
		}
	}
}

func (m *Manager) runRule(ctx context.Context, r Rule, price float64) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule %s panicked: %v", r.Name, rec)
		}
	}()

	pos := *m.active
	if !r.Condition(pos, price) {
		return nil
	}
	m.logger.Warn().Str("rule", r.Name).Float64("price", price).Msg("Watchdog rule triggered")
	metrics.WatchdogTriggers.WithLabelValues(r.Name).Inc()

	return r.Action(ctx, RuleContext{
		Rule:     r.Name,
		Position: pos,
		Price:    price,
		Logger:   m.logger.With().Str("rule", r.Name).Logger(),
		m:        m,
	})
}

// ==================== Drawdown ====================

// TrackerPolicy is the DrawdownPolicy backed by a risk.DrawdownTracker.
type TrackerPolicy struct {
	Tracker *risk.DrawdownTracker
	Action  risk.DrawdownAction

	opened time.Time
}

// NewTrackerPolicy creates a policy breaching at maxPercent give-back.
func NewTrackerPolicy(maxPercent float64, action risk.DrawdownAction) *TrackerPolicy {
	return &TrackerPolicy{Tracker: risk.NewDrawdownTracker(maxPercent), Action: action}
}

// Breached feeds price to the tracker. A position with a new OpenedAt starts
// from a fresh peak even when side and entry repeat.
func (p *TrackerPolicy) Breached(pos ActivePosition, price float64) bool {
	if !pos.OpenedAt.Equal(p.opened) {
		p.Tracker.Reset()
		p.opened = pos.OpenedAt
	}
	breached, _ := p.Tracker.Observe(string(pos.Side), pos.EntryPrice, price)
	return breached
}

// Handle alerts, or exits when configured to.
func (p *TrackerPolicy) Handle(ctx context.Context, rc RuleContext) error {
	if p.Action == risk.DrawdownExit {
		defer p.Tracker.Reset()
		return rc.EmergencyExit(ctx, "drawdown")
	}
	rc.Logger.Warn().Float64("peak", p.Tracker.Peak()).Float64("price", rc.Price).Msg("Drawdown limit exceeded")
	rc.Publish(events.Event{
		Type: events.EventDrawdownAlert,
		Data: map[string]interface{}{
			"symbol":      rc.Position.Symbol,
			"side":        string(rc.Position.Side),
			"entry_price": rc.Position.EntryPrice,
			"peak":        p.Tracker.Peak(),
			"price":       rc.Price,
		},
	})
	return nil
}
