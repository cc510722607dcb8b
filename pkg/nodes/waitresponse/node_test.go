package waitresponse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

type sentMessage struct {
	chatID   string
	senderID string
	content  string
}

type fakeSender struct {
	sent []sentMessage
}

func (s *fakeSender) SendMessage(_ context.Context, chatID, senderID, content string, _ models.MessageType, _ *models.FileInfo) error {
	s.sent = append(s.sent, sentMessage{chatID, senderID, content})

	return nil
}

type fakeEngine struct {
	logs       []models.ExecutionLog
	advancedTo []string
	waits      []protocol.WaitSpec
	contexts   []map[string]any
}

func (e *fakeEngine) Advance(_ context.Context, _, currentNodeID string) error {
	e.advancedTo = append(e.advancedTo, currentNodeID)

	return nil
}

func (e *fakeEngine) AdvanceTo(_ context.Context, _, targetNodeID string) error {
	e.advancedTo = append(e.advancedTo, targetNodeID)

	return nil
}

func (e *fakeEngine) Complete(_ context.Context, _ string) error { return nil }

func (e *fakeEngine) Fail(_ context.Context, _ string, _ error) error { return nil }

func (e *fakeEngine) Wait(_ context.Context, _ string, spec protocol.WaitSpec) error {
	e.waits = append(e.waits, spec)

	return nil
}

func (e *fakeEngine) AppendLog(_ context.Context, _ string, entry models.ExecutionLog) error {
	e.logs = append(e.logs, entry)

	return nil
}

func (e *fakeEngine) SetContextValues(_ context.Context, _ string, values map[string]any) error {
	e.contexts = append(e.contexts, values)

	return nil
}

func waitNode(t *testing.T, data map[string]any, sender protocol.Sender) *Node {
	t.Helper()

	node, err := NewNode(
		&models.WorkflowNode{ID: "wait-1", Type: models.NodeTypeWaitForResponse, Data: data},
		protocol.Dependencies{Sender: sender},
	)
	require.NoError(t, err)

	return node
}

func testExecution() *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:      "exec-1",
		UserID:  "user-1",
		ChatID:  "chat-1",
		Status:  models.ExecutionStatusRunning,
		Context: models.ExecutionContext{},
	}
}

func TestExecuteResponseWritesContextAndAdvances(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	node := waitNode(t, map[string]any{"saveAs": "answer"}, &fakeSender{})

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	require.Len(t, engine.waits, 1)
	spec := engine.waits[0]
	assert.True(t, spec.Listen)
	assert.Nil(t, spec.OnTimeout)

	require.Len(t, engine.logs, 1)
	assert.Equal(t, "Wait for Response", engine.logs[0].Action)

	spec.OnResponse(context.Background(), correlator.Response{
		MessageID: "msg-7",
		Content:   "blue",
		SenderID:  "customer-9",
	})

	require.Len(t, engine.contexts, 1)
	assert.Equal(t, map[string]any{
		"lastResponse":  "blue",
		"lastMessageId": "msg-7",
		"answer":        "blue",
	}, engine.contexts[0])

	require.Len(t, engine.logs, 2)
	assert.Equal(t, "Response Received", engine.logs[1].Action)
	assert.Equal(t, models.LogStatusSuccess, engine.logs[1].Status)

	assert.Equal(t, []string{"wait-1"}, engine.advancedTo)
}

func TestExecuteWithoutSaveAs(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	node := waitNode(t, map[string]any{}, &fakeSender{})

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	engine.waits[0].OnResponse(context.Background(), correlator.Response{MessageID: "msg-1", Content: "ok"})

	require.Len(t, engine.contexts, 1)
	assert.Equal(t, map[string]any{"lastResponse": "ok", "lastMessageId": "msg-1"}, engine.contexts[0])
}

func TestExecuteTimeoutSendsMessageVerbatimAndAdvances(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	engine := &fakeEngine{}
	node := waitNode(t, map[string]any{
		"timeout":        float64(1000),
		"timeoutMessage": "Still there, {{name}}?",
	}, sender)

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	require.Len(t, engine.waits, 1)
	spec := engine.waits[0]
	assert.Equal(t, time.Second, spec.Timeout)
	require.NotNil(t, spec.OnTimeout)

	spec.OnTimeout(context.Background())

	require.Len(t, engine.logs, 2)
	assert.Equal(t, "Response Timeout", engine.logs[1].Action)
	assert.Equal(t, models.LogStatusInfo, engine.logs[1].Status)

	// No interpolation on the timeout message.
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Still there, {{name}}?", sender.sent[0].content)
	assert.Equal(t, "chat-1", sender.sent[0].chatID)

	assert.Equal(t, []string{"wait-1"}, engine.advancedTo)
	assert.Empty(t, engine.contexts)
}

func TestExecuteTimeoutWithoutMessage(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	engine := &fakeEngine{}
	node := waitNode(t, map[string]any{"timeout": float64(500)}, sender)

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	engine.waits[0].OnTimeout(context.Background())

	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{"wait-1"}, engine.advancedTo)
}
