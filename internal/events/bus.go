package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventStopLossMoved   EventType = "STOP_LOSS_MOVED"
	EventTakeProfitMoved EventType = "TAKE_PROFIT_MOVED"
	EventEmergencyExit   EventType = "EMERGENCY_EXIT"
	EventDrawdownAlert   EventType = "DRAWDOWN_ALERT"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventCircuitTripped  EventType = "CIRCUIT_BREAKER_TRIPPED"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Publisher is implemented by anything that accepts events.
type Publisher interface {
	Publish(event Event)
}

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	synchronous bool
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// NewSyncEventBus creates a bus that calls subscribers on the publishing
// goroutine, in subscription order.
func NewSyncEventBus() *EventBus {
	eb := NewEventBus()
	eb.synchronous = true
	return eb
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subs := append([]Subscriber(nil), eb.subscribers[event.Type]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range subs {
		if eb.synchronous {
			sub(event)
		} else {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}
}

// PositionOpened builds a position opened event
func PositionOpened(symbol, side string, entryPrice, size, stopLoss, takeProfit float64) Event {
	return Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"entry_price": entryPrice,
			"size":        size,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	}
}

// PositionClosed builds a position closed event. exitPrice is the last known
// price since fills are not tracked.
func PositionClosed(symbol, side, reason string, entryPrice, exitPrice, size float64) Event {
	pnl := (exitPrice - entryPrice) * size
	if side == "sell" {
		pnl = -pnl
	}
	pnlPercent := 0.0
	if entryPrice > 0 && size > 0 {
		pnlPercent = pnl / (entryPrice * size) * 100
	}
	return Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"size":        size,
			"pnl":         pnl,
			"pnl_percent": pnlPercent,
		},
	}
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(symbol, signalType string, price float64, details map[string]interface{}) {
	data := map[string]interface{}{
		"symbol":      symbol,
		"signal_type": signalType,
		"price":       price,
	}
	for k, v := range details {
		data[k] = v
	}
	eb.Publish(Event{Type: EventSignalGenerated, Data: data})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
