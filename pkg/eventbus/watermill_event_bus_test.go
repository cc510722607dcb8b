package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow-io/chatflow/pkg/channels/gochannel"
	"github.com/chatflow-io/chatflow/pkg/events"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not reached in time")
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)

	var mu sync.Mutex
	var received []*events.MessageCreated

	bus.Handle(events.MessageCreatedEvent, func(_ context.Context, event any) error {
		msg, ok := event.(*events.MessageCreated)
		require.True(t, ok)

		mu.Lock()
		received = append(received, msg)
		mu.Unlock()

		return nil
	})

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "chat-1", events.MessageCreated{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.MessageCreatedEvent, Timestamp: time.Now()},
		MessageID: "m1",
		ChatID:    "chat-1",
		SenderID:  "user-2",
		Content:   "hello",
		CreatedAt: time.Now(),
	}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", received[0].Content)
	assert.Equal(t, "chat-1", received[0].ChatID)
}

func TestWatermillEventBus_MultipleHandlersAndRemoval(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)

	var mu sync.Mutex
	counts := map[string]int{}

	add := func(name string) func() {
		return bus.Handle(events.MessageCreatedEvent, func(context.Context, any) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()

			return nil
		})
	}

	removeFirst := add("first")
	add("second")

	require.NoError(t, bus.Subscribe(ctx))

	publish := func(id string) {
		require.NoError(t, bus.Publish(ctx, "chat-1", events.MessageCreated{
			BaseEvent: events.BaseEvent{ID: id, Type: events.MessageCreatedEvent, Timestamp: time.Now()},
			MessageID: id,
			ChatID:    "chat-1",
			CreatedAt: time.Now(),
		}))
	}

	publish("m1")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return counts["first"] == 1 && counts["second"] == 1
	})

	removeFirst()
	publish("m2")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return counts["second"] == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["first"], "removed handler must not see further events")
}
