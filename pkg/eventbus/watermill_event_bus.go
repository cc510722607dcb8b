package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/chatflow-io/chatflow/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	nextHandlerID int
	subscriptions map[events.EventType]map[int]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]map[int]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

// Handle registers a handler and returns a function that removes it again.
// The removal function is what lets a response correlator detach without
// tearing down the whole subscription.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	handlers, ok := eb.subscriptions[eventType]
	if !ok {
		handlers = make(map[int]EventHandler)
		eb.subscriptions[eventType] = handlers
	}

	eb.nextHandlerID++
	id := eb.nextHandlerID
	handlers[id] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		delete(eb.subscriptions[eventType], id)
	}
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.MessageTopic, events.ExecutionTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		event := newEvent(eventType)
		if event == nil {
			msg.Nack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			msg.Nack()

			continue
		}

		eb.mu.RLock()
		handlers := make([]EventHandler, 0, len(eb.subscriptions[eventType]))
		for _, handler := range eb.subscriptions[eventType] {
			handlers = append(handlers, handler)
		}
		eb.mu.RUnlock()

		failed := false

		for _, handler := range handlers {
			if err := handler(ctx, event); err != nil {
				failed = true
			}
		}

		if failed {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func topicFor(eventType events.EventType) string {
	if eventType == events.MessageCreatedEvent {
		return events.MessageTopic
	}

	return events.ExecutionTopic
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.MessageCreatedEvent:
		return &events.MessageCreated{}
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}
	case events.ExecutionWaitingEvent:
		return &events.ExecutionWaiting{}
	case events.ExecutionCompletedEvent,
		events.ExecutionFailedEvent,
		events.ExecutionCancelledEvent,
		events.ExecutionPausedEvent:
		return &events.ExecutionFinished{}
	default:
		return nil
	}
}
