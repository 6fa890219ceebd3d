package position

import (
	"context"
	"fmt"
	"math"

	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/metrics"
	"futures-trailing-bot/internal/order"
)

// EmergencyExit flattens the position with a reduce-only market order and
// removes every resting order. A call made while an exit is running is a
// no-op. Only a failed closing order is returned; the state is kept so the
// next tick retries.
func (m *Manager) EmergencyExit(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergencyExitLocked(ctx, reason)
}

func (m *Manager) emergencyExitLocked(ctx context.Context, reason string) error {
	if m.closing {
		m.logger.Debug().Str("reason", reason).Msg("Already closing, skipping")
		return nil
	}
	m.closing = true
	m.refreshState()
	defer func() {
		m.closing = false
		m.refreshState()
	}()

	log := m.logger.With().Str("reason", reason).Logger()
	log.Error().Msg("Emergency exit triggered")
	metrics.EmergencyExits.WithLabelValues(reason).Inc()

	contracts, err := m.liveContracts(ctx)
	if err != nil {
		if m.active == nil {
			return fmt.Errorf("%w: %s: %w", ErrEmergencyExitFailure, reason, err)
		}
		contracts = m.active.SignedContracts()
		log.Warn().Err(err).Float64("contracts", contracts).Msg("Positions query failed, closing tracked size")
	}

	if contracts == 0 {
		log.Info().Msg("Already flat, purging orders")
		m.cancelAllLocked(ctx)
		m.clearLocked(reason)
		return nil
	}

	closeSide := exchange.SideFromContracts(contracts).Opposite()
	qty := math.Abs(contracts)

	m.purgeReduceOnlyLocked(ctx, closeSide)

	if _, err := m.gw.PlaceMarket(ctx, closeSide, qty, order.WithReduceOnly()); err != nil {
		log.Error().Err(err).Float64("qty", qty).Msg("Closing market order failed")
		return fmt.Errorf("%w: %s: %w", ErrEmergencyExitFailure, reason, err)
	}

	m.cancelAllLocked(ctx)

	metrics.PositionEvents.WithLabelValues("emergency_exit").Inc()
	m.publish(events.Event{
		Type: events.EventEmergencyExit,
		Data: map[string]interface{}{
			"symbol":     m.cfg.Symbol,
			"reason":     reason,
			"close_side": string(closeSide),
			"quantity":   qty,
		},
	})
	m.clearLocked(reason)
	log.Warn().Str("close_side", string(closeSide)).Float64("qty", qty).Msg("Emergency exit complete")
	return nil
}

// purgeReduceOnlyLocked cancels reduce-only orders on side so they cannot
// race the closing order. Failures are logged and ignored.
func (m *Manager) purgeReduceOnlyLocked(ctx context.Context, side exchange.Side) {
	open, err := m.ex.FetchOpenOrders(ctx, m.cfg.Symbol)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Purge: open orders query failed")
		return
	}
	for _, o := range open {
		if o.Side != side || !o.ReduceOnly {
			continue
		}
		if _, err := m.gw.Cancel(ctx, o.ID); err != nil {
			m.logger.Warn().Err(err).Str("order_id", o.ID).Msg("Purge: cancel failed")
			continue
		}
		m.logger.Info().Str("order_id", o.ID).Str("side", string(side)).Msg("Cancelled stale reduce-only order")
	}
}

// cancelAllLocked cancels every open order of the symbol, best effort.
func (m *Manager) cancelAllLocked(ctx context.Context) {
	open, err := m.ex.FetchOpenOrders(ctx, m.cfg.Symbol)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Cancel all: open orders query failed")
		return
	}
	for _, o := range open {
		if _, err := m.gw.Cancel(ctx, o.ID); err != nil {
			m.logger.Warn().Err(err).Str("order_id", o.ID).Msg("Cancel all: cancel failed")
		}
	}
}
