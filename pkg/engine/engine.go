// Package engine orchestrates workflow executions: entry node lookup,
// node-by-node traversal, suspension on timers and response listeners, and
// the execution lifecycle operations start, pause and cancel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/events"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/otelhelper"
	"github.com/chatflow-io/chatflow/pkg/persistence"
	"github.com/chatflow-io/chatflow/pkg/protocol"
	"github.com/chatflow-io/chatflow/pkg/registry"
	"github.com/chatflow-io/chatflow/pkg/timers"
)

var (
	ErrNoStartNode       = errors.New("no start node found in workflow")
	ErrExecutionFinished = errors.New("execution already finished")
)

// wait tracks what one suspended execution is blocked on. Removing the wait
// from the engine's map is the atomic claim: whichever of timer fire,
// correlated response, pause or cancel removes it first wins, and the losers
// see no entry and do nothing. The claimed flag covers handles attached
// after the claim: a late attachment finds it set and releases the handle
// instead of storing it on the orphaned struct.
type wait struct {
	timer       *timers.Handle
	unsubscribe func()
	claimed     bool
}

// Engine drives workflow executions. One Engine instance serves all
// executions of the process; each execution has at most one active code path
// at a time (the synchronous traversal, or the single claimed wake).
type Engine struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	registry   *registry.Registry
	timers     *timers.Manager
	correlator *correlator.Correlator
	publisher  eventbus.EventPublisher
	clock      clock.Clock
	tracer     trace.Tracer
	logger     *slog.Logger

	mu    sync.Mutex
	waits map[string]*wait
}

// Config carries the engine's collaborators.
type Config struct {
	Workflows  persistence.WorkflowRepository
	Executions persistence.ExecutionRepository
	Registry   *registry.Registry
	Timers     *timers.Manager
	Correlator *correlator.Correlator
	Publisher  eventbus.EventPublisher
	Clock      clock.Clock
	Tracer     trace.Tracer
}

func New(cfg Config) *Engine {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	return &Engine{
		workflows:  cfg.Workflows,
		executions: cfg.Executions,
		registry:   cfg.Registry,
		timers:     cfg.Timers,
		correlator: cfg.Correlator,
		publisher:  cfg.Publisher,
		clock:      cfg.Clock,
		tracer:     tracer,
		logger:     log.WithModule("engine"),
		waits:      make(map[string]*wait),
	}
}

// StartWorkflow creates an execution record for the workflow and runs the
// traversal from the entry node until it finishes or suspends. The returned
// execution id is valid even when the run has already failed; the failure is
// recorded on the execution and returned as the error.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID, userID, chatID string, triggerContext models.ExecutionContext) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start_workflow",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.ChatIDKey, chatID),
	)
	defer span.End()

	workflow, err := e.workflows.WorkflowByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("fetch workflow %s: %w", workflowID, err)
	}

	if triggerContext == nil {
		triggerContext = models.ExecutionContext{}
	}

	execution := &models.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		UserID:     userID,
		ChatID:     chatID,
		Status:     models.ExecutionStatusRunning,
		Context:    triggerContext,
		StartedAt:  e.clock.Now(),
		Logs:       []models.ExecutionLog{},
	}

	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("create execution: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	e.logger.InfoContext(ctx, "Starting workflow execution",
		"workflow_id", workflowID, "execution_id", execution.ID, "chat_id", chatID)

	e.publishLifecycle(ctx, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent),
		ExecutionID: execution.ID,
		WorkflowID:  workflowID,
		UserID:      userID,
		ChatID:      chatID,
	})

	startNode := workflow.StartNode()
	if startNode == nil {
		_ = e.Fail(ctx, execution.ID, ErrNoStartNode)

		return execution.ID, ErrNoStartNode
	}

	_ = e.AppendLog(ctx, execution.ID, models.ExecutionLog{
		NodeID:   "start",
		NodeName: "Workflow Start",
		Action:   "Workflow execution started",
		Status:   models.LogStatusInfo,
		Message:  fmt.Sprintf("Starting workflow: %s", workflow.Name),
	})

	if err := e.executeNode(ctx, execution.ID, startNode.ID, workflow); err != nil {
		return execution.ID, err
	}

	return execution.ID, nil
}

// executeNode runs one node of the workflow. Node executor errors fail the
// execution rather than propagating.
func (e *Engine) executeNode(ctx context.Context, executionID, nodeID string, workflow *models.Workflow) error {
	node := workflow.NodeByID(nodeID)
	if node == nil {
		return e.Fail(ctx, executionID, fmt.Errorf("node %s not found in workflow %s", nodeID, workflow.ID))
	}

	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("fetch execution %s: %w", executionID, err)
	}

	// A pause or cancel that landed while the previous node was advancing
	// stops the traversal here.
	if execution.Status.Terminal() {
		e.logger.DebugContext(ctx, "Skipping node on finished execution",
			"execution_id", executionID, "node_id", nodeID, "status", execution.Status)

		return nil
	}

	if err := e.executions.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		CurrentNodeID: &nodeID,
	}); err != nil {
		return fmt.Errorf("update current node: %w", err)
	}

	execution.CurrentNodeID = nodeID

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_node",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	executor, err := e.registry.CreateNode(ctx, node)
	if err != nil {
		otelhelper.SetError(span, err)

		return e.Fail(ctx, executionID, err)
	}

	e.logger.DebugContext(ctx, "Executing node",
		"execution_id", executionID, "node_id", nodeID, "node_type", node.Type)

	if err := executor.Execute(ctx, execution, workflow, e); err != nil {
		otelhelper.SetError(span, err)

		return e.Fail(ctx, executionID, err)
	}

	return nil
}

// Advance follows the default outgoing edge of currentNodeID, completing the
// execution when there is none.
func (e *Engine) Advance(ctx context.Context, executionID, currentNodeID string) error {
	workflow, err := e.workflowForExecution(ctx, executionID)
	if err != nil {
		return err
	}

	edge := workflow.DefaultEdgeFrom(currentNodeID)
	if edge == nil {
		return e.Complete(ctx, executionID)
	}

	return e.executeNode(ctx, executionID, edge.Target, workflow)
}

// AdvanceTo jumps directly to the named node.
func (e *Engine) AdvanceTo(ctx context.Context, executionID, targetNodeID string) error {
	workflow, err := e.workflowForExecution(ctx, executionID)
	if err != nil {
		return err
	}

	return e.executeNode(ctx, executionID, targetNodeID, workflow)
}

// Complete finishes the execution with status completed.
func (e *Engine) Complete(ctx context.Context, executionID string) error {
	e.claimWake(executionID)

	status := models.ExecutionStatusCompleted
	completedAt := e.clock.Now()

	if err := e.executions.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Status:      &status,
		CompletedAt: &completedAt,
	}); err != nil {
		return fmt.Errorf("complete execution %s: %w", executionID, err)
	}

	_ = e.AppendLog(ctx, executionID, models.ExecutionLog{
		NodeID:   "end",
		NodeName: "Workflow End",
		Action:   "Workflow completed successfully",
		Status:   models.LogStatusSuccess,
		Message:  "Workflow execution completed",
	})

	e.logger.InfoContext(ctx, "Workflow execution completed", "execution_id", executionID)
	e.publishFinished(ctx, executionID, events.ExecutionCompletedEvent, "")

	return nil
}

// Fail finishes the execution with status failed and records the reason.
func (e *Engine) Fail(ctx context.Context, executionID string, reason error) error {
	e.claimWake(executionID)

	status := models.ExecutionStatusFailed
	completedAt := e.clock.Now()
	errMsg := reason.Error()

	if err := e.executions.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Status:      &status,
		CompletedAt: &completedAt,
		Error:       &errMsg,
	}); err != nil {
		return fmt.Errorf("fail execution %s: %w", executionID, err)
	}

	_ = e.AppendLog(ctx, executionID, models.ExecutionLog{
		NodeID:   "error",
		NodeName: "Error",
		Action:   "Workflow failed",
		Status:   models.LogStatusError,
		Message:  fmt.Sprintf("Workflow execution failed: %s", errMsg),
	})

	e.logger.ErrorContext(ctx, "Workflow execution failed",
		"execution_id", executionID, "error", errMsg)
	e.publishFinished(ctx, executionID, events.ExecutionFailedEvent, errMsg)

	return nil
}

// Wait suspends the execution. The first of timer fire, correlated response,
// pause or cancel claims the wake; the engine cancels the losing handles.
func (e *Engine) Wait(ctx context.Context, executionID string, spec protocol.WaitSpec) error {
	if spec.OnTimeout == nil && !spec.Listen {
		return errors.New("wait spec registers neither a timer nor a listener")
	}

	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("fetch execution %s: %w", executionID, err)
	}

	status := models.ExecutionStatusWaiting
	if err := e.executions.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Status: &status,
	}); err != nil {
		return fmt.Errorf("suspend execution %s: %w", executionID, err)
	}

	w := &wait{}

	e.mu.Lock()
	if _, exists := e.waits[executionID]; exists {
		e.mu.Unlock()

		return fmt.Errorf("execution %s is already waiting", executionID)
	}
	e.waits[executionID] = w
	e.mu.Unlock()

	// The listener is attached before the timer so an immediate fire finds
	// it registered and detaches it.
	if spec.Listen {
		unsubscribe := e.correlator.Listen(execution.ChatID, execution.UserID,
			func(ctx context.Context, response correlator.Response) {
				if !e.claimWake(executionID) {
					return
				}

				if err := e.resume(ctx, executionID); err != nil {
					return
				}

				spec.OnResponse(ctx, response)
			})

		e.attachListener(w, unsubscribe)
	}

	if spec.OnTimeout != nil {
		handle := e.timers.Schedule(executionID, spec.Timeout, func() {
			// Timer fires on its own goroutine, detached from the request
			// that scheduled it.
			ctx := context.Background()
			if !e.claimWake(executionID) {
				return
			}

			if err := e.resume(ctx, executionID); err != nil {
				return
			}

			spec.OnTimeout(ctx)
		})

		e.attachTimer(w, handle)
	}

	// A pause or cancel landing between the status write above and the map
	// insert finds nothing to claim; reap the wait here so the execution
	// does not hold a live timer or listener past its terminal status.
	execution, err = e.executions.ExecutionByID(ctx, executionID)
	if err == nil && execution.Status.Terminal() {
		e.claimWake(executionID)

		return nil
	}

	e.publishLifecycle(ctx, events.ExecutionWaiting{
		BaseEvent:   e.baseEvent(events.ExecutionWaitingEvent),
		ExecutionID: executionID,
		NodeID:      spec.NodeID,
	})

	return nil
}

// AppendLog appends an execution log entry, stamping the timestamp when the
// caller left it zero.
func (e *Engine) AppendLog(ctx context.Context, executionID string, entry models.ExecutionLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.clock.Now()
	}

	return e.executions.AppendExecutionLog(ctx, executionID, entry)
}

// SetContextValues merges values into the execution's context and persists
// the result.
func (e *Engine) SetContextValues(ctx context.Context, executionID string, values map[string]any) error {
	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("fetch execution %s: %w", executionID, err)
	}

	merged := models.ExecutionContext{}
	for k, v := range execution.Context {
		merged[k] = v
	}

	for k, v := range values {
		merged[k] = v
	}

	return e.executions.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Context: merged,
	})
}

// PauseExecution stops a running or waiting execution without a completion
// timestamp. Pending timers and response listeners are both released; a
// paused execution never resumes on its own.
func (e *Engine) PauseExecution(ctx context.Context, executionID string) error {
	return e.halt(ctx, executionID, models.ExecutionStatusPaused, events.ExecutionPausedEvent, false)
}

// CancelExecution terminates the execution, releasing pending timers and
// response listeners. A timer that already raced past the claim is ignored.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	return e.halt(ctx, executionID, models.ExecutionStatusCancelled, events.ExecutionCancelledEvent, true)
}

func (e *Engine) halt(ctx context.Context, executionID string, status models.ExecutionStatus, eventType events.EventType, stampCompleted bool) error {
	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("fetch execution %s: %w", executionID, err)
	}

	if execution.Status.Terminal() {
		return fmt.Errorf("execution %s already %s: %w", executionID, execution.Status, ErrExecutionFinished)
	}

	e.claimWake(executionID)

	update := models.ExecutionUpdate{Status: &status}
	if stampCompleted {
		completedAt := e.clock.Now()
		update.CompletedAt = &completedAt
	}

	if err := e.executions.UpdateExecution(ctx, executionID, update); err != nil {
		return fmt.Errorf("update execution %s: %w", executionID, err)
	}

	e.logger.InfoContext(ctx, "Workflow execution halted",
		"execution_id", executionID, "status", status)
	e.publishFinished(ctx, executionID, eventType, "")

	return nil
}

// WaitingCount reports how many executions are currently suspended.
func (e *Engine) WaitingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.waits)
}

// claimWake atomically takes ownership of the execution's pending wait,
// cancelling its timer and detaching its listener. Returns false when
// nothing was pending or another path claimed it first.
func (e *Engine) claimWake(executionID string) bool {
	e.mu.Lock()
	w, ok := e.waits[executionID]
	if ok {
		delete(e.waits, executionID)
		w.claimed = true
	}
	e.mu.Unlock()

	if !ok {
		return false
	}

	if w.timer != nil {
		e.timers.Cancel(w.timer)
	}

	if w.unsubscribe != nil {
		w.unsubscribe()
	}

	return true
}

// attachListener stores the handler-removal closure on the wait. When the
// wait was claimed before the closure arrived, the listener is detached on
// the spot instead of leaking for the process lifetime.
func (e *Engine) attachListener(w *wait, unsubscribe func()) {
	e.mu.Lock()
	if w.claimed {
		e.mu.Unlock()
		unsubscribe()

		return
	}

	w.unsubscribe = unsubscribe
	e.mu.Unlock()
}

// attachTimer stores the timer handle on the wait, cancelling it immediately
// when the wait was already claimed.
func (e *Engine) attachTimer(w *wait, handle *timers.Handle) {
	e.mu.Lock()
	if w.claimed {
		e.mu.Unlock()
		e.timers.Cancel(handle)

		return
	}

	w.timer = handle
	e.mu.Unlock()
}

// resume moves a claimed execution back to running before its wake callback
// continues the traversal. The transition is conditional: only a waiting
// execution resumes. A wake that claimed a stale entry left behind by a
// pause or cancel that raced the wait registration is dropped here, so a
// terminal status is never overwritten.
func (e *Engine) resume(ctx context.Context, executionID string) error {
	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to resume execution",
			"execution_id", executionID, "error", err)

		return err
	}

	if execution.Status != models.ExecutionStatusWaiting {
		e.logger.DebugContext(ctx, "Dropping wake for execution no longer waiting",
			"execution_id", executionID, "status", execution.Status)

		return fmt.Errorf("execution %s is %s: %w", executionID, execution.Status, ErrExecutionFinished)
	}

	status := models.ExecutionStatusRunning
	if err := e.executions.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Status: &status,
	}); err != nil {
		e.logger.ErrorContext(ctx, "Failed to resume execution",
			"execution_id", executionID, "error", err)

		return err
	}

	return nil
}

func (e *Engine) workflowForExecution(ctx context.Context, executionID string) (*models.Workflow, error) {
	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("fetch execution %s: %w", executionID, err)
	}

	workflow, err := e.workflows.WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("fetch workflow %s: %w", execution.WorkflowID, err)
	}

	return workflow, nil
}

func (e *Engine) baseEvent(eventType events.EventType) events.BaseEvent {
	id := uuid.New().String()
	if e.publisher != nil {
		if bus, ok := e.publisher.(eventbus.EventBus); ok {
			id = bus.GenerateID()
		}
	}

	return events.BaseEvent{ID: id, Type: eventType, Timestamp: e.clock.Now()}
}

func (e *Engine) publishFinished(ctx context.Context, executionID string, eventType events.EventType, errMsg string) {
	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return
	}

	e.publishLifecycle(ctx, events.ExecutionFinished{
		BaseEvent:   e.baseEvent(eventType),
		ExecutionID: executionID,
		WorkflowID:  execution.WorkflowID,
		Status:      string(execution.Status),
		Error:       errMsg,
		Duration:    e.clock.Now().Sub(execution.StartedAt),
	})
}

func (e *Engine) publishLifecycle(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	var key string

	switch typed := event.(type) {
	case events.ExecutionStarted:
		key = typed.ExecutionID
	case events.ExecutionWaiting:
		key = typed.ExecutionID
	case events.ExecutionFinished:
		key = typed.ExecutionID
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
