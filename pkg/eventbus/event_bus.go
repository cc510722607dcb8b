// Package eventbus provides event-driven communication between the chat
// surface, the trigger dispatchers and the workflow engine.
package eventbus

import (
	"context"

	"github.com/chatflow-io/chatflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers a handler for an event type. Multiple handlers per
	// type are supported; each receives every event.
	Handle(eventType events.EventType, handler EventHandler) func()
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
