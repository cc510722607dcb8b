// Package messagereceived starts workflow executions when an incoming chat
// message matches a workflow's messageReceived trigger.
package messagereceived

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/events"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// Starter is the engine surface the dispatcher needs.
type Starter interface {
	StartWorkflow(ctx context.Context, workflowID, userID, chatID string, triggerContext models.ExecutionContext) (string, error)
}

// Dispatcher watches message creation events and starts matching workflows.
type Dispatcher struct {
	workflows persistence.WorkflowRepository
	bus       eventbus.EventSubscriber
	engine    Starter
	logger    *slog.Logger

	detach func()
}

func NewDispatcher(workflows persistence.WorkflowRepository, bus eventbus.EventSubscriber, engine Starter) *Dispatcher {
	return &Dispatcher{
		workflows: workflows,
		bus:       bus,
		engine:    engine,
		logger:    log.WithModule("trigger.message_received"),
	}
}

// Start attaches the dispatcher to the event bus.
func (d *Dispatcher) Start(_ context.Context) error {
	d.detach = d.bus.Handle(events.MessageCreatedEvent, d.handleMessage)
	d.logger.Info("Message received trigger dispatcher started")

	return nil
}

// Stop detaches the dispatcher.
func (d *Dispatcher) Stop(_ context.Context) error {
	if d.detach != nil {
		d.detach()
		d.detach = nil
	}

	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, event any) error {
	message, ok := event.(*events.MessageCreated)
	if !ok {
		return nil
	}

	workflows, err := d.workflows.ActiveWorkflows(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to load active workflows", "error", err)

		return err
	}

	for _, workflow := range workflows {
		if !d.matches(workflow, message) {
			continue
		}

		executionID, err := d.engine.StartWorkflow(ctx, workflow.ID, workflow.UserID, message.ChatID,
			models.ExecutionContext{
				"triggerMessage":   message.Content,
				"triggerMessageId": message.MessageID,
			})
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to start triggered workflow",
				"workflow_id", workflow.ID, "chat_id", message.ChatID, "error", err)

			continue
		}

		d.logger.InfoContext(ctx, "Started workflow from incoming message",
			"workflow_id", workflow.ID, "execution_id", executionID, "chat_id", message.ChatID)
	}

	return nil
}

// matches reports whether the message should fire the workflow. Messages
// sent by the workflow's own user never trigger it, or every outgoing
// message node would fan out new executions.
func (d *Dispatcher) matches(workflow *models.Workflow, message *events.MessageCreated) bool {
	if workflow.Trigger.Type != models.TriggerTypeMessageReceived {
		return false
	}

	if message.SenderID == workflow.UserID {
		return false
	}

	if workflow.ChatID != "" && workflow.ChatID != message.ChatID {
		return false
	}

	return conditionMatches(workflow.Trigger.MessageCondition, message.Content)
}

// conditionMatches applies the trigger's message condition. A nil or empty
// condition matches every message; contains is case insensitive, equals and
// regex are exact.
func conditionMatches(condition *models.MessageCondition, content string) bool {
	if condition == nil {
		return true
	}

	if condition.Contains != "" &&
		!strings.Contains(strings.ToLower(content), strings.ToLower(condition.Contains)) {
		return false
	}

	if condition.Equals != "" && content != condition.Equals {
		return false
	}

	if condition.Regex != "" {
		re, err := regexp.Compile(condition.Regex)
		if err != nil || !re.MatchString(content) {
			return false
		}
	}

	return true
}
