// Package events defines the event types published on the chatflow bus:
// chat message creation (consumed by the response correlator and the
// messageReceived trigger) and execution lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Topics.
const MessageTopic = "chatflow.messages"     // chat message creation events
const ExecutionTopic = "chatflow.executions" // execution lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Chat events.
	MessageCreatedEvent EventType = "chat.message.created"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageCreated is published whenever a chat message is written through the
// chat-send interface. CreatedAt is the message's own creation timestamp;
// the correlator compares it against observation time to filter out
// historical messages replayed by the subscription mechanism.
type MessageCreated struct {
	BaseEvent

	MessageID   string    `json:"message_id"`
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m MessageCreated) GetType() EventType {
	return MessageCreatedEvent
}

// ExecutionStarted is published when an execution record is created.
type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	UserID      string `json:"user_id"`
	ChatID      string `json:"chat_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionWaiting is published when an execution suspends on a timer or a
// response wait.
type ExecutionWaiting struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEvent
}

// ExecutionFinished carries the terminal status of an execution.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	WorkflowID  string        `json:"workflow_id"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// GetType returns the concrete terminal event type (completed, failed,
// cancelled or paused), which callers set on the BaseEvent.
func (e ExecutionFinished) GetType() EventType {
	return e.Type
}
