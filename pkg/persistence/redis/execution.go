package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// ExecutionRepository stores execution records under
// chatflow:executions:<id> with by-user and by-workflow index sets.
type ExecutionRepository struct {
	client goredis.UniversalClient
}

func (er *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	if err := setJSON(ctx, er.client, key("executions", execution.ID), execution); err != nil {
		return persistence.NewStoreError("CreateExecution", execution.ID, err)
	}

	if err := er.client.SAdd(ctx, key("executions", "by-user", execution.UserID), execution.ID).Err(); err != nil {
		return persistence.NewStoreError("CreateExecution", execution.ID, err)
	}

	return er.client.SAdd(ctx, key("executions", "by-workflow", execution.WorkflowID), execution.ID).Err()
}

func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}

	found, err := getJSON(ctx, er.client, key("executions", id), execution)
	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	if !found {
		return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

func (er *ExecutionRepository) UpdateExecution(ctx context.Context, id string, update models.ExecutionUpdate) error {
	execution, err := er.ExecutionByID(ctx, id)
	if err != nil {
		return err
	}

	update.Apply(execution)

	if err := setJSON(ctx, er.client, key("executions", id), execution); err != nil {
		return persistence.NewStoreError("UpdateExecution", id, err)
	}

	return nil
}

func (er *ExecutionRepository) AppendExecutionLog(ctx context.Context, id string, entry models.ExecutionLog) error {
	execution, err := er.ExecutionByID(ctx, id)
	if err != nil {
		return err
	}

	execution.Logs = append(execution.Logs, entry)

	if err := setJSON(ctx, er.client, key("executions", id), execution); err != nil {
		return persistence.NewStoreError("AppendExecutionLog", id, err)
	}

	return nil
}

func (er *ExecutionRepository) ExecutionsByUser(ctx context.Context, userID string) ([]*models.WorkflowExecution, error) {
	return er.loadSet(ctx, key("executions", "by-user", userID))
}

func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return er.loadSet(ctx, key("executions", "by-workflow", workflowID))
}

func (er *ExecutionRepository) loadSet(ctx context.Context, indexKey string) ([]*models.WorkflowExecution, error) {
	ids, err := er.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, persistence.NewStoreError("ListExecutions", "", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution := &models.WorkflowExecution{}

		found, err := getJSON(ctx, er.client, key("executions", id), execution)
		if err != nil {
			return nil, persistence.NewStoreError("ListExecutions", id, err)
		}

		if found {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

// MessageRepository stores chat messages under chatflow:messages:<chat>:<id>
// with a per-chat zset ordered by creation time.
type MessageRepository struct {
	client goredis.UniversalClient
}

func (mr *MessageRepository) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	if err := setJSON(ctx, mr.client, key("messages", message.ChatID, message.ID), message); err != nil {
		return persistence.NewStoreError("SaveMessage", message.ID, err)
	}

	return mr.client.ZAdd(ctx, key("messages", "by-chat", message.ChatID), goredis.Z{
		Score:  float64(message.CreatedAt.UnixMilli()),
		Member: message.ID,
	}).Err()
}

func (mr *MessageRepository) MessagesByChat(ctx context.Context, chatID string) ([]*models.ChatMessage, error) {
	ids, err := mr.client.ZRange(ctx, key("messages", "by-chat", chatID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewStoreError("MessagesByChat", chatID, err)
	}

	messages := make([]*models.ChatMessage, 0, len(ids))

	for _, id := range ids {
		message := &models.ChatMessage{}

		found, err := getJSON(ctx, mr.client, key("messages", chatID, id), message)
		if err != nil {
			return nil, persistence.NewStoreError("MessagesByChat", chatID, err)
		}

		if found {
			messages = append(messages, message)
		}
	}

	return messages, nil
}

// ScheduledMessageRepository stores queued messages with a zset keyed by the
// delivery timestamp so the due query is a range scan.
type ScheduledMessageRepository struct {
	client goredis.UniversalClient
}

func (sr *ScheduledMessageRepository) SaveScheduledMessage(ctx context.Context, message *models.ScheduledMessage) error {
	if err := setJSON(ctx, sr.client, key("scheduled", message.ID), message); err != nil {
		return persistence.NewStoreError("SaveScheduledMessage", message.ID, err)
	}

	if err := sr.client.SAdd(ctx, key("scheduled", "by-user", message.UserID), message.ID).Err(); err != nil {
		return persistence.NewStoreError("SaveScheduledMessage", message.ID, err)
	}

	// Only pending messages stay in the due index.
	dueKey := key("scheduled", "due")
	if message.Status == models.ScheduledStatusPending {
		return sr.client.ZAdd(ctx, dueKey, goredis.Z{
			Score:  float64(message.ScheduledFor.UnixMilli()),
			Member: message.ID,
		}).Err()
	}

	return sr.client.ZRem(ctx, dueKey, message.ID).Err()
}

func (sr *ScheduledMessageRepository) ScheduledMessageByID(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	message := &models.ScheduledMessage{}

	found, err := getJSON(ctx, sr.client, key("scheduled", id), message)
	if err != nil {
		return nil, persistence.NewStoreError("ScheduledMessageByID", id, err)
	}

	if !found {
		return nil, persistence.NewStoreError("ScheduledMessageByID", id, persistence.ErrScheduledMessageNotFound)
	}

	return message, nil
}

func (sr *ScheduledMessageRepository) ScheduledMessagesByUser(ctx context.Context, userID string) ([]*models.ScheduledMessage, error) {
	ids, err := sr.client.SMembers(ctx, key("scheduled", "by-user", userID)).Result()
	if err != nil {
		return nil, persistence.NewStoreError("ListScheduledMessages", "", err)
	}

	messages := make([]*models.ScheduledMessage, 0, len(ids))

	for _, id := range ids {
		message := &models.ScheduledMessage{}

		found, err := getJSON(ctx, sr.client, key("scheduled", id), message)
		if err != nil {
			return nil, persistence.NewStoreError("ListScheduledMessages", id, err)
		}

		if found {
			messages = append(messages, message)
		}
	}

	return messages, nil
}

func (sr *ScheduledMessageRepository) DueScheduledMessages(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	ids, err := sr.client.ZRangeByScore(ctx, key("scheduled", "due"), &goredis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(now),
	}).Result()
	if err != nil {
		return nil, persistence.NewStoreError("DueScheduledMessages", "", err)
	}

	messages := make([]*models.ScheduledMessage, 0, len(ids))

	for _, id := range ids {
		message := &models.ScheduledMessage{}

		found, err := getJSON(ctx, sr.client, key("scheduled", id), message)
		if err != nil {
			return nil, persistence.NewStoreError("DueScheduledMessages", id, err)
		}

		if found && message.Status == models.ScheduledStatusPending {
			messages = append(messages, message)
		}
	}

	return messages, nil
}
