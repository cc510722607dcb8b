// Package persistence provides the data storage abstraction for workflows,
// executions, chat messages and scheduled messages.
package persistence

import (
	"context"
	"time"

	"github.com/chatflow-io/chatflow/pkg/models"
)

// WorkflowRepository stores workflow definitions. The builder UI is the
// writer; the engine and trigger dispatchers only read.
type WorkflowRepository interface {
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	WorkflowsByUser(ctx context.Context, userID string) ([]*models.Workflow, error)
	// ActiveWorkflowsByTrigger returns the active workflows of a user with
	// the given trigger type.
	ActiveWorkflowsByTrigger(ctx context.Context, userID string, triggerType models.TriggerType) ([]*models.Workflow, error)
	// ActiveWorkflowsByChat returns active workflows scoped to one chat.
	ActiveWorkflowsByChat(ctx context.Context, chatID string) ([]*models.Workflow, error)
	// ActiveWorkflows returns every active workflow, for trigger dispatch.
	ActiveWorkflows(ctx context.Context) ([]*models.Workflow, error)
}

// ExecutionRepository stores workflow execution records. Updates are
// last-writer-wins on the supplied fields; the engine guarantees only one
// code path mutates a given execution at a time.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	UpdateExecution(ctx context.Context, id string, update models.ExecutionUpdate) error
	AppendExecutionLog(ctx context.Context, id string, entry models.ExecutionLog) error
	ExecutionsByUser(ctx context.Context, userID string) ([]*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
}

// MessageRepository stores chat messages written through the chat-send
// interface.
type MessageRepository interface {
	SaveMessage(ctx context.Context, message *models.ChatMessage) error
	MessagesByChat(ctx context.Context, chatID string) ([]*models.ChatMessage, error)
}

// ScheduledMessageRepository stores messages queued for future delivery and
// answers the poller's due query.
type ScheduledMessageRepository interface {
	SaveScheduledMessage(ctx context.Context, message *models.ScheduledMessage) error
	ScheduledMessageByID(ctx context.Context, id string) (*models.ScheduledMessage, error)
	ScheduledMessagesByUser(ctx context.Context, userID string) ([]*models.ScheduledMessage, error)
	// DueScheduledMessages returns pending messages with ScheduledFor at or
	// before now.
	DueScheduledMessages(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error)
}

// Persistence aggregates the repositories behind one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	MessageRepository() MessageRepository
	ScheduledMessageRepository() ScheduledMessageRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
