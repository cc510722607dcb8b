package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// MessageRepository stores chat messages as JSON files under
// <root>/messages/<chatID>.
type MessageRepository struct {
	root string
	mu   *sync.Mutex
}

func (mr *MessageRepository) SaveMessage(_ context.Context, message *models.ChatMessage) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	path := filepath.Join(mr.root, "messages", message.ChatID, message.ID+".json")
	if err := writeJSON(path, message); err != nil {
		return persistence.NewStoreError("SaveMessage", message.ID, err)
	}

	return nil
}

func (mr *MessageRepository) MessagesByChat(_ context.Context, chatID string) ([]*models.ChatMessage, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	paths, err := listJSON(filepath.Join(mr.root, "messages", chatID))
	if err != nil {
		return nil, persistence.NewStoreError("MessagesByChat", chatID, err)
	}

	messages := make([]*models.ChatMessage, 0, len(paths))

	for _, path := range paths {
		message := &models.ChatMessage{}
		if err := readJSON(path, message); err != nil {
			return nil, persistence.NewStoreError("MessagesByChat", chatID, err)
		}

		messages = append(messages, message)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	return messages, nil
}

// ScheduledMessageRepository stores queued messages under
// <root>/scheduled_messages.
type ScheduledMessageRepository struct {
	root string
	mu   *sync.Mutex
}

func (sr *ScheduledMessageRepository) path(id string) string {
	return filepath.Join(sr.root, "scheduled_messages", id+".json")
}

func (sr *ScheduledMessageRepository) SaveScheduledMessage(_ context.Context, message *models.ScheduledMessage) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if err := writeJSON(sr.path(message.ID), message); err != nil {
		return persistence.NewStoreError("SaveScheduledMessage", message.ID, err)
	}

	return nil
}

func (sr *ScheduledMessageRepository) ScheduledMessageByID(_ context.Context, id string) (*models.ScheduledMessage, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	message := &models.ScheduledMessage{}
	if err := readJSON(sr.path(id), message); err != nil {
		return nil, persistence.NewStoreError("ScheduledMessageByID", id, persistence.ErrScheduledMessageNotFound)
	}

	return message, nil
}

func (sr *ScheduledMessageRepository) ScheduledMessagesByUser(_ context.Context, userID string) ([]*models.ScheduledMessage, error) {
	return sr.filter(func(m *models.ScheduledMessage) bool {
		return m.UserID == userID
	})
}

func (sr *ScheduledMessageRepository) DueScheduledMessages(_ context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	return sr.filter(func(m *models.ScheduledMessage) bool {
		return m.Status == models.ScheduledStatusPending && !m.ScheduledFor.After(now)
	})
}

func (sr *ScheduledMessageRepository) filter(keep func(*models.ScheduledMessage) bool) ([]*models.ScheduledMessage, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	paths, err := listJSON(filepath.Join(sr.root, "scheduled_messages"))
	if err != nil {
		return nil, persistence.NewStoreError("ListScheduledMessages", "", err)
	}

	messages := make([]*models.ScheduledMessage, 0, len(paths))

	for _, path := range paths {
		message := &models.ScheduledMessage{}
		if err := readJSON(path, message); err != nil {
			return nil, persistence.NewStoreError("ListScheduledMessages", filepath.Base(path), err)
		}

		if keep(message) {
			messages = append(messages, message)
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ScheduledFor.Before(messages[j].ScheduledFor)
	})

	return messages, nil
}
