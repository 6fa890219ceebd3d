package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncBusDeliversInOrder(t *testing.T) {
	bus := NewSyncEventBus()

	var got []string
	bus.SubscribeAll(func(e Event) { got = append(got, "all:"+string(e.Type)) })
	bus.Subscribe(EventPositionOpened, func(e Event) { got = append(got, "opened-1") })
	bus.Subscribe(EventPositionOpened, func(e Event) { got = append(got, "opened-2") })
	bus.Subscribe(EventPositionClosed, func(e Event) { got = append(got, "closed") })

	bus.Publish(Event{Type: EventPositionOpened})
	bus.Publish(Event{Type: EventBotStarted})

	assert.Equal(t, []string{
		"opened-1",
		"opened-2",
		"all:" + string(EventPositionOpened),
		"all:" + string(EventBotStarted),
	}, got)
}

func TestSyncBusStampsTimestamp(t *testing.T) {
	bus := NewSyncEventBus()
	var seen []Event
	bus.SubscribeAll(func(e Event) { seen = append(seen, e) })

	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	before := time.Now()
	bus.Publish(Event{Type: EventError})
	bus.Publish(Event{Type: EventError, Timestamp: fixed})

	require.Len(t, seen, 2)
	assert.False(t, seen[0].Timestamp.Before(before))
	assert.Equal(t, fixed, seen[1].Timestamp)
}

func TestAsyncBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	var typed, all int32
	wg.Add(3)
	bus.Subscribe(EventEmergencyExit, func(Event) { atomic.AddInt32(&typed, 1); wg.Done() })
	bus.SubscribeAll(func(Event) { atomic.AddInt32(&all, 1); wg.Done() })

	bus.Publish(Event{Type: EventEmergencyExit})
	bus.Publish(Event{Type: EventBotStopped})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribers were not called")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&typed))
	assert.EqualValues(t, 2, atomic.LoadInt32(&all))
}

func TestPositionClosedPnL(t *testing.T) {
	long := PositionClosed("BTCUSDT", "buy", "stop_loss", 100, 95, 2)
	assert.Equal(t, EventPositionClosed, long.Type)
	assert.InDelta(t, -10.0, long.Data["pnl"], 1e-9)
	assert.InDelta(t, -5.0, long.Data["pnl_percent"], 1e-9)

	short := PositionClosed("BTCUSDT", "sell", "take_profit", 100, 90, 1)
	assert.InDelta(t, 10.0, short.Data["pnl"], 1e-9)
	assert.InDelta(t, 10.0, short.Data["pnl_percent"], 1e-9)

	empty := PositionClosed("BTCUSDT", "buy", "unknown", 0, 95, 0)
	assert.Equal(t, 0.0, empty.Data["pnl_percent"])
}

func TestPublishHelpers(t *testing.T) {
	bus := NewSyncEventBus()
	var seen []Event
	bus.SubscribeAll(func(e Event) { seen = append(seen, e) })

	bus.PublishSignal("ETHUSDT", "BUY", 2500, map[string]interface{}{"rsi7": 41.5})
	bus.PublishError("open_position", "order rejected", errors.New("insufficient margin"))
	bus.PublishError("check_exit", "no error value", nil)

	require.Len(t, seen, 3)
	assert.Equal(t, EventSignalGenerated, seen[0].Type)
	assert.Equal(t, "ETHUSDT", seen[0].Data["symbol"])
	assert.Equal(t, 41.5, seen[0].Data["rsi7"])

	assert.Equal(t, EventError, seen[1].Type)
	assert.Equal(t, "insufficient margin", seen[1].Data["error"])
	assert.NotContains(t, seen[2].Data, "error")
}
