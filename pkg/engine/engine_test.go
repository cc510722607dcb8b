package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/events"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence/file"
	"github.com/chatflow-io/chatflow/pkg/protocol"
	"github.com/chatflow-io/chatflow/pkg/registry"
	"github.com/chatflow-io/chatflow/pkg/timers"
)

// fakeBus delivers message events synchronously to registered handlers.
type fakeBus struct {
	handlers map[int]eventbus.EventHandler
	nextID   int
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[int]eventbus.EventHandler{}}
}

func (b *fakeBus) Handle(_ events.EventType, handler eventbus.EventHandler) func() {
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() { delete(b.handlers, id) }
}

func (b *fakeBus) Subscribe(_ context.Context) error { return nil }

func (b *fakeBus) deliverMessage(t *testing.T, chatID, senderID, content, messageID string, createdAt time.Time) {
	t.Helper()

	event := &events.MessageCreated{
		BaseEvent:   events.BaseEvent{ID: messageID, Type: events.MessageCreatedEvent, Timestamp: createdAt},
		MessageID:   messageID,
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: "text",
		CreatedAt:   createdAt,
	}

	for _, handler := range b.handlers {
		require.NoError(t, handler(context.Background(), event))
	}
}

type sentMessage struct {
	chatID  string
	content string
}

type recordingSender struct {
	sent []sentMessage
}

func (s *recordingSender) SendMessage(_ context.Context, chatID, _, content string, _ models.MessageType, _ *models.FileInfo) error {
	s.sent = append(s.sent, sentMessage{chatID, content})

	return nil
}

type testEnv struct {
	clock       *clock.FakeClock
	bus         *fakeBus
	sender      *recordingSender
	persistence *file.Persistence
	engine      *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := newFakeBus()
	sender := &recordingSender{}
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(log.WithModule("registry"))
	reg.RegisterDefaultNodes(protocol.Dependencies{Sender: sender})

	eng := New(Config{
		Workflows:  store.WorkflowRepository(),
		Executions: store.ExecutionRepository(),
		Registry:   reg,
		Timers:     timers.NewManager(clk, log.WithModule("timers")),
		Correlator: correlator.New(bus, clk),
		Clock:      clk,
	})

	return &testEnv{clock: clk, bus: bus, sender: sender, persistence: store, engine: eng}
}

func (e *testEnv) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, e.persistence.WorkflowRepository().SaveWorkflow(context.Background(), workflow))
}

func (e *testEnv) execution(t *testing.T, id string) *models.WorkflowExecution {
	t.Helper()

	execution, err := e.persistence.ExecutionRepository().ExecutionByID(context.Background(), id)
	require.NoError(t, err)

	return execution
}

func logActions(execution *models.WorkflowExecution) []string {
	actions := make([]string, 0, len(execution.Logs))
	for _, entry := range execution.Logs {
		actions = append(actions, entry.Action)
	}

	return actions
}

func messageNode(id, content string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: models.NodeTypeMessage, Data: map[string]any{"content": content}}
}

func edge(source, target string) *models.WorkflowEdge {
	return &models.WorkflowEdge{ID: source + "-" + target, Source: source, Target: target}
}

func TestStartWorkflowCompletesLinearRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	env.saveWorkflow(t, &models.Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Name:   "Welcome flow",
		Nodes: []*models.WorkflowNode{
			messageNode("n1", "Welcome!"),
			{ID: "n2", Type: models.NodeTypeDelay, Data: map[string]any{"duration": float64(0), "unit": "seconds"}},
			messageNode("n3", "Anything else?"),
		},
		Edges:    []*models.WorkflowEdge{edge("n1", "n2"), edge("n2", "n3")},
		Trigger:  models.WorkflowTrigger{Type: models.TriggerTypeManual},
		IsActive: true,
	})

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-1", "user-1", "chat-1", nil)
	require.NoError(t, err)

	// The zero-length delay still suspends until the timer fires.
	assert.Equal(t, models.ExecutionStatusWaiting, env.execution(t, executionID).Status)

	env.clock.Advance(0)

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.NotNil(t, execution.CompletedAt)

	assert.Equal(t, []string{
		"Workflow execution started",
		"Send Message",
		"Delay",
		"Delay Complete",
		"Send Message",
		"Workflow completed successfully",
	}, logActions(execution))

	assert.Equal(t, "start", execution.Logs[0].NodeID)
	assert.Equal(t, "end", execution.Logs[len(execution.Logs)-1].NodeID)

	require.Len(t, env.sender.sent, 2)
	assert.Equal(t, "Welcome!", env.sender.sent[0].content)
	assert.Equal(t, "Anything else?", env.sender.sent[1].content)

	assert.Zero(t, env.engine.WaitingCount())
}

func TestStartWorkflowWithoutEntryNodeFails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// Every node has an incoming edge, so there is no entry point.
	env.saveWorkflow(t, &models.Workflow{
		ID:       "wf-cycle",
		UserID:   "user-1",
		Name:     "Cyclic flow",
		Nodes:    []*models.WorkflowNode{messageNode("a", "A"), messageNode("b", "B")},
		Edges:    []*models.WorkflowEdge{edge("a", "b"), edge("b", "a")},
		Trigger:  models.WorkflowTrigger{Type: models.TriggerTypeManual},
		IsActive: true,
	})

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-cycle", "user-1", "chat-1", nil)
	require.ErrorIs(t, err, ErrNoStartNode)
	require.NotEmpty(t, executionID)

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "no start node")

	require.NotEmpty(t, execution.Logs)
	last := execution.Logs[len(execution.Logs)-1]
	assert.Equal(t, "error", last.NodeID)
	assert.Equal(t, models.LogStatusError, last.Status)

	assert.Empty(t, env.sender.sent)
}

func TestConditionBranching(t *testing.T) {
	t.Parallel()

	branchingWorkflow := func(edges []*models.WorkflowEdge) *models.Workflow {
		return &models.Workflow{
			ID:     "wf-branch",
			UserID: "user-1",
			Name:   "Branching flow",
			Nodes: []*models.WorkflowNode{
				{ID: "cond", Type: models.NodeTypeCondition, Data: map[string]any{
					"conditionType": "contains", "value": "yes", "variable": "answer",
				}},
				messageNode("yes-node", "Great!"),
				messageNode("no-node", "Too bad."),
			},
			Edges:    edges,
			Trigger:  models.WorkflowTrigger{Type: models.TriggerTypeManual},
			IsActive: true,
		}
	}

	t.Run("true branch", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.saveWorkflow(t, branchingWorkflow([]*models.WorkflowEdge{
			{ID: "e1", Source: "cond", Target: "yes-node", SourceHandle: "true"},
			{ID: "e2", Source: "cond", Target: "no-node", SourceHandle: "false"},
		}))

		executionID, err := env.engine.StartWorkflow(context.Background(), "wf-branch", "user-1", "chat-1",
			models.ExecutionContext{"answer": "yes please"})
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusCompleted, env.execution(t, executionID).Status)
		require.Len(t, env.sender.sent, 1)
		assert.Equal(t, "Great!", env.sender.sent[0].content)
	})

	t.Run("missing branch edge completes without error", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.saveWorkflow(t, branchingWorkflow([]*models.WorkflowEdge{
			{ID: "e1", Source: "cond", Target: "yes-node", SourceHandle: "true"},
		}))

		executionID, err := env.engine.StartWorkflow(context.Background(), "wf-branch", "user-1", "chat-1",
			models.ExecutionContext{"answer": "no"})
		require.NoError(t, err)

		execution := env.execution(t, executionID)
		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Empty(t, execution.Error)
		assert.Empty(t, env.sender.sent)
	})
}

func waitingWorkflow(timeoutMs float64, extra map[string]any) *models.Workflow {
	data := map[string]any{}
	for k, v := range extra {
		data[k] = v
	}

	if timeoutMs > 0 {
		data["timeout"] = timeoutMs
	}

	return &models.Workflow{
		ID:     "wf-wait",
		UserID: "user-1",
		Name:   "Ask flow",
		Nodes: []*models.WorkflowNode{
			messageNode("ask", "What is your favorite color?"),
			{ID: "wait", Type: models.NodeTypeWaitForResponse, Data: data},
			messageNode("thanks", "Thanks!"),
		},
		Edges:    []*models.WorkflowEdge{edge("ask", "wait"), edge("wait", "thanks")},
		Trigger:  models.WorkflowTrigger{Type: models.TriggerTypeManual},
		IsActive: true,
	}
}

func TestWaitForResponseReceivesReply(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, waitingWorkflow(60000, map[string]any{"saveAs": "favoriteColor"}))

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-wait", "user-1", "chat-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, env.execution(t, executionID).Status)

	env.bus.deliverMessage(t, "chat-1", "customer-9", "blue", "msg-42", env.clock.Now())

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "blue", execution.Context["lastResponse"])
	assert.Equal(t, "msg-42", execution.Context["lastMessageId"])
	assert.Equal(t, "blue", execution.Context["favoriteColor"])

	// The timeout timer was cancelled by the claimed response; advancing
	// past it must not touch the execution again.
	logCount := len(execution.Logs)
	env.clock.Advance(2 * time.Minute)
	assert.Len(t, env.execution(t, executionID).Logs, logCount)

	require.Len(t, env.sender.sent, 2)
	assert.Equal(t, "Thanks!", env.sender.sent[1].content)
}

func TestWaitForResponseIgnoresOwnUserMessages(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, waitingWorkflow(0, nil))

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-wait", "user-1", "chat-1", nil)
	require.NoError(t, err)

	// The acting user's own message is not the awaited response.
	env.bus.deliverMessage(t, "chat-1", "user-1", "a note to self", "msg-1", env.clock.Now())
	assert.Equal(t, models.ExecutionStatusWaiting, env.execution(t, executionID).Status)

	env.bus.deliverMessage(t, "chat-1", "customer-9", "hello", "msg-2", env.clock.Now())
	assert.Equal(t, models.ExecutionStatusCompleted, env.execution(t, executionID).Status)
}

func TestWaitForResponseTimeoutAdvancesOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, waitingWorkflow(1000, map[string]any{
		"timeoutMessage": "No rush, {{name}}.",
	}))

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-wait", "user-1", "chat-1", nil)
	require.NoError(t, err)

	env.clock.Advance(time.Second)

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Contains(t, logActions(execution), "Response Timeout")

	// ask, verbatim timeout message, thanks. Exactly one advance happened.
	require.Len(t, env.sender.sent, 3)
	assert.Equal(t, "No rush, {{name}}.", env.sender.sent[1].content)
	assert.Equal(t, "Thanks!", env.sender.sent[2].content)

	// A response after the timeout finds nothing waiting.
	env.bus.deliverMessage(t, "chat-1", "customer-9", "late reply", "msg-9", env.clock.Now())
	assert.Len(t, env.sender.sent, 3)
	assert.NotContains(t, env.execution(t, executionID).Context, "lastResponse")
}

func TestCancelPreventsStaleTimerLogs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, &models.Workflow{
		ID:     "wf-delay",
		UserID: "user-1",
		Name:   "Slow flow",
		Nodes: []*models.WorkflowNode{
			messageNode("n1", "Starting"),
			{ID: "n2", Type: models.NodeTypeDelay, Data: map[string]any{"duration": float64(1), "unit": "hours"}},
			messageNode("n3", "Done"),
		},
		Edges:    []*models.WorkflowEdge{edge("n1", "n2"), edge("n2", "n3")},
		Trigger:  models.WorkflowTrigger{Type: models.TriggerTypeManual},
		IsActive: true,
	})

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-delay", "user-1", "chat-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, env.execution(t, executionID).Status)

	require.NoError(t, env.engine.CancelExecution(context.Background(), executionID))

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	require.NotNil(t, execution.CompletedAt)

	logCount := len(execution.Logs)

	// The delay timer deadline passes, but the wake was already claimed.
	env.clock.Advance(2 * time.Hour)

	execution = env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.Len(t, execution.Logs, logCount)
	require.Len(t, env.sender.sent, 1)

	// Cancelling again reports the terminal state.
	assert.ErrorIs(t, env.engine.CancelExecution(context.Background(), executionID), ErrExecutionFinished)
}

func TestStaleTimerWakeKeepsCancelledStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, &models.Workflow{
		ID:     "wf-delay",
		UserID: "user-1",
		Name:   "Slow flow",
		Nodes: []*models.WorkflowNode{
			messageNode("n1", "Starting"),
			{ID: "n2", Type: models.NodeTypeDelay, Data: map[string]any{"duration": float64(1), "unit": "hours"}},
			messageNode("n3", "Done"),
		},
		Edges:    []*models.WorkflowEdge{edge("n1", "n2"), edge("n2", "n3")},
		Trigger:  models.WorkflowTrigger{Type: models.TriggerTypeManual},
		IsActive: true,
	})

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-delay", "user-1", "chat-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, env.execution(t, executionID).Status)

	// Record the cancellation directly, leaving the wait entry and its armed
	// timer behind. This is the window where a cancel lands before the wait
	// registers, finding nothing to claim.
	status := models.ExecutionStatusCancelled
	completedAt := env.clock.Now()
	require.NoError(t, env.persistence.ExecutionRepository().UpdateExecution(context.Background(), executionID,
		models.ExecutionUpdate{Status: &status, CompletedAt: &completedAt}))

	logCount := len(env.execution(t, executionID).Logs)

	// The orphaned timer fires; its wake claims the stale entry but must not
	// overwrite the terminal status or keep traversing.
	env.clock.Advance(2 * time.Hour)

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.Len(t, execution.Logs, logCount)
	require.Len(t, env.sender.sent, 1)
	assert.Equal(t, "Starting", env.sender.sent[0].content)
	assert.Zero(t, env.engine.WaitingCount())
}

func TestClaimedWaitReleasesLateHandles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := &wait{}
	env.engine.mu.Lock()
	env.engine.waits["exec-raced"] = w
	env.engine.mu.Unlock()

	require.True(t, env.engine.claimWake("exec-raced"))

	// A listener arriving after the claim is detached on the spot rather
	// than stored on the orphaned wait.
	detached := false
	env.engine.attachListener(w, func() { detached = true })
	assert.True(t, detached)
	assert.Nil(t, w.unsubscribe)

	// Same for a timer handle; the deadline passing must not fire it.
	fired := false
	handle := env.engine.timers.Schedule("exec-raced", time.Minute, func() { fired = true })
	env.engine.attachTimer(w, handle)
	assert.Nil(t, w.timer)

	env.clock.Advance(2 * time.Minute)
	assert.False(t, fired)
}

func TestPauseReleasesTimerAndListener(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, waitingWorkflow(60000, nil))

	executionID, err := env.engine.StartWorkflow(context.Background(), "wf-wait", "user-1", "chat-1", nil)
	require.NoError(t, err)

	require.NoError(t, env.engine.PauseExecution(context.Background(), executionID))

	execution := env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.Nil(t, execution.CompletedAt)

	// Neither a late response nor the timeout resumes a paused execution.
	env.bus.deliverMessage(t, "chat-1", "customer-9", "reply", "msg-1", env.clock.Now())
	env.clock.Advance(2 * time.Minute)

	execution = env.execution(t, executionID)
	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.NotContains(t, execution.Context, "lastResponse")
	assert.Zero(t, env.engine.WaitingCount())
}

func TestConcurrentExecutionsAreIndependent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.saveWorkflow(t, waitingWorkflow(0, map[string]any{"saveAs": "answer"}))

	first, err := env.engine.StartWorkflow(context.Background(), "wf-wait", "user-1", "chat-1", nil)
	require.NoError(t, err)

	second, err := env.engine.StartWorkflow(context.Background(), "wf-wait", "user-1", "chat-2", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, env.engine.WaitingCount())

	// Each chat's reply resumes only its own execution.
	env.bus.deliverMessage(t, "chat-2", "customer-2", "green", "msg-b", env.clock.Now())

	assert.Equal(t, models.ExecutionStatusWaiting, env.execution(t, first).Status)
	assert.Equal(t, models.ExecutionStatusCompleted, env.execution(t, second).Status)
	assert.Equal(t, "green", env.execution(t, second).Context["answer"])

	env.bus.deliverMessage(t, "chat-1", "customer-1", "red", "msg-a", env.clock.Now())

	firstExecution := env.execution(t, first)
	assert.Equal(t, models.ExecutionStatusCompleted, firstExecution.Status)
	assert.Equal(t, "red", firstExecution.Context["answer"])
	assert.NotEqual(t, firstExecution.Logs, env.execution(t, second).Logs)
}

func TestStartWorkflowUnknownWorkflow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	_, err := env.engine.StartWorkflow(context.Background(), "missing", "user-1", "chat-1", nil)
	require.Error(t, err)
}
