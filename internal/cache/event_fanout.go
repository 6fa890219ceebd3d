package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/events"
)

// DefaultEventChannel is used when no channel is configured.
const DefaultEventChannel = "futures-trailing-bot:events"

// EventFanout republishes bus events on a Redis channel for external
// consumers.
type EventFanout struct {
	store   Store
	channel string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEventFanout creates a fan-out onto channel.
func NewEventFanout(store Store, channel string, logger zerolog.Logger) *EventFanout {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventFanout{
		store:   store,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.With().Str("component", "event_fanout").Logger(),
	}
}

// Attach subscribes to every event on bus.
func (f *EventFanout) Attach(bus *events.EventBus) {
	bus.SubscribeAll(f.Forward)
}

// Forward publishes a single event. Errors are logged; a degraded Redis
// drops events silently.
func (f *EventFanout) Forward(e events.Event) {
	if !f.store.IsHealthy() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.store.Publish(ctx, f.channel, e); err != nil {
		f.logger.Debug().Err(err).Str("event", string(e.Type)).Msg("Event fan-out failed")
	}
}

// Channel returns the pub/sub channel name.
func (f *EventFanout) Channel() string {
	return f.channel
}
