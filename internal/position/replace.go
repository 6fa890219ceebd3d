package position

import (
	"context"
	"fmt"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/metrics"
	"futures-trailing-bot/internal/order"
)

type leg int

const (
	legStopLoss leg = iota
	legTakeProfit
)

func (l leg) String() string {
	if l == legStopLoss {
		return "stop_loss"
	}
	return "take_profit"
}

func (l leg) id(p *ActivePosition) string {
	if l == legStopLoss {
		return p.IDs.StopLoss
	}
	return p.IDs.TakeProfit
}

// replaceLocked swaps the resting order of leg for one at newPrice:
// cancel, confirm nobody else replaced it meanwhile, place, then record id
// and price together. Any failure once protection may be gone flattens the
// position.
func (m *Manager) replaceLocked(ctx context.Context, l leg, newPrice float64) error {
	pos := m.active
	oldID := l.id(pos)
	log := m.logger.With().Str("leg", l.String()).Str("old_id", oldID).Float64("new_price", newPrice).Logger()

	if oldID != "" {
		if _, err := m.gw.Cancel(ctx, oldID); err != nil {
			log.Error().Err(err).Msg("Cancel before replace failed")
			failure := fmt.Errorf("replace %s: %w", l, err)
			if exitErr := m.emergencyExitLocked(ctx, l.String()+"_cancel_failed"); exitErr != nil {
				return fmt.Errorf("%w; %w", failure, exitErr)
			}
			return failure
		}
	}

	if m.active == nil || l.id(m.active) != oldID {
		log.Warn().Msg("Order already replaced, skipping")
		return nil
	}

	closeSide := pos.Side.Opposite()
	qty := pos.Remaining()
	var (
		placed *exchange.Order
		err    error
	)
	if l == legStopLoss {
		placed, err = m.gw.PlaceStopLimit(ctx, closeSide, qty, newPrice, newPrice, order.WithReduceOnly())
	} else {
		placed, err = m.gw.PlaceLimit(ctx, closeSide, qty, newPrice, order.WithReduceOnly())
	}
	if err != nil {
		log.Error().Err(err).Msg("Placement after cancel failed")
		failure := fmt.Errorf("replace %s: %w", l, err)
		if l == legStopLoss {
			m.active.IDs.StopLoss = ""
		} else {
			m.active.IDs.TakeProfit = ""
		}
		if exitErr := m.emergencyExitLocked(ctx, l.String()+"_replace_failed"); exitErr != nil {
			return fmt.Errorf("%w; %w", failure, exitErr)
		}
		return failure
	}

	var old float64
	evt := events.EventStopLossMoved
	if l == legStopLoss {
		old = m.active.CurrentSL
		m.active.IDs.StopLoss, m.active.CurrentSL = placed.ID, newPrice
	} else {
		old = m.active.TakeProfit
		m.active.IDs.TakeProfit, m.active.TakeProfit = placed.ID, newPrice
		evt = events.EventTakeProfitMoved
	}
	m.setActive(m.active)

	log.Info().Str("new_id", placed.ID).Float64("old_price", old).Msg("Protective order replaced")
	metrics.PositionEvents.WithLabelValues(l.String() + "_moved").Inc()
	m.publish(events.Event{
		Type: evt,
		Data: map[string]interface{}{
			"symbol":    m.cfg.Symbol,
			"side":      string(pos.Side),
			"old_price": old,
			"new_price": newPrice,
			"order_id":  placed.ID,
		},
	})
	return nil
}
