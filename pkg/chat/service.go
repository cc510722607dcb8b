// Package chat implements the chat-send service backed by the message store
// and the event bus.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/events"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// Service persists outgoing and incoming messages and announces their
// creation on the event bus so correlators and triggers can observe them.
type Service struct {
	messages persistence.MessageRepository
	bus      eventbus.EventBus
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(messages persistence.MessageRepository, bus eventbus.EventBus, clk clock.Clock) *Service {
	return &Service{
		messages: messages,
		bus:      bus,
		clock:    clk,
		logger:   log.WithModule("chat"),
	}
}

// SendMessage stores the message and publishes a MessageCreated event. The
// store write happens first so an observer reacting to the event always
// finds the message persisted.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID, content string, messageType models.MessageType, fileInfo *models.FileInfo) error {
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := &models.ChatMessage{
		ID:          uuid.New().String(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: messageType,
		FileInfo:    fileInfo,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.messages.SaveMessage(ctx, message); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	event := events.MessageCreated{
		BaseEvent: events.BaseEvent{
			ID:        s.bus.GenerateID(),
			Type:      events.MessageCreatedEvent,
			Timestamp: s.clock.Now(),
		},
		MessageID:   message.ID,
		ChatID:      message.ChatID,
		SenderID:    message.SenderID,
		Content:     message.Content,
		MessageType: string(message.MessageType),
		CreatedAt:   message.CreatedAt,
	}

	if err := s.bus.Publish(ctx, message.ChatID, event); err != nil {
		// The message is already persisted; a publish failure only delays
		// observers, so log and keep going.
		s.logger.ErrorContext(ctx, "Failed to publish message created event",
			"message_id", message.ID, "chat_id", message.ChatID, "error", err)
	}

	s.logger.DebugContext(ctx, "Message sent", "message_id", message.ID,
		"chat_id", message.ChatID, "sender_id", message.SenderID, "type", message.MessageType)

	return nil
}
