package message

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

type sentMessage struct {
	chatID      string
	senderID    string
	content     string
	messageType models.MessageType
	fileInfo    *models.FileInfo
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendMessage(_ context.Context, chatID, senderID, content string, messageType models.MessageType, fileInfo *models.FileInfo) error {
	if s.err != nil {
		return s.err
	}

	s.sent = append(s.sent, sentMessage{chatID, senderID, content, messageType, fileInfo})

	return nil
}

type fakeEngine struct {
	logs       []models.ExecutionLog
	advancedTo []string
	failedWith error
	completed  bool
}

func (e *fakeEngine) Advance(_ context.Context, _, currentNodeID string) error {
	e.advancedTo = append(e.advancedTo, currentNodeID)

	return nil
}

func (e *fakeEngine) AdvanceTo(_ context.Context, _, targetNodeID string) error {
	e.advancedTo = append(e.advancedTo, targetNodeID)

	return nil
}

func (e *fakeEngine) Complete(_ context.Context, _ string) error {
	e.completed = true

	return nil
}

func (e *fakeEngine) Fail(_ context.Context, _ string, reason error) error {
	e.failedWith = reason

	return nil
}

func (e *fakeEngine) Wait(_ context.Context, _ string, _ protocol.WaitSpec) error {
	return nil
}

func (e *fakeEngine) AppendLog(_ context.Context, _ string, entry models.ExecutionLog) error {
	e.logs = append(e.logs, entry)

	return nil
}

func (e *fakeEngine) SetContextValues(_ context.Context, _ string, _ map[string]any) error {
	return nil
}

func testExecution() *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:      "exec-1",
		UserID:  "user-1",
		ChatID:  "chat-1",
		Status:  models.ExecutionStatusRunning,
		Context: models.ExecutionContext{"name": "Ada"},
	}
}

func TestExecuteSendsInterpolatedMessage(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	engine := &fakeEngine{}

	workflowNode := &models.WorkflowNode{
		ID:   "node-1",
		Type: models.NodeTypeMessage,
		Data: map[string]any{"label": "Greeting", "content": "Hello {{name}}!"},
	}

	node, err := NewNode(workflowNode, protocol.Dependencies{Sender: sender})
	require.NoError(t, err)

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "chat-1", sender.sent[0].chatID)
	assert.Equal(t, "user-1", sender.sent[0].senderID)
	assert.Equal(t, "Hello Ada!", sender.sent[0].content)
	assert.Equal(t, models.MessageTypeText, sender.sent[0].messageType)
	assert.Nil(t, sender.sent[0].fileInfo)

	require.Len(t, engine.logs, 1)
	assert.Equal(t, models.LogStatusSuccess, engine.logs[0].Status)
	assert.Equal(t, "Send Message", engine.logs[0].Action)
	assert.Equal(t, "Greeting", engine.logs[0].NodeName)

	assert.Equal(t, []string{"node-1"}, engine.advancedTo)
	assert.NoError(t, engine.failedWith)
}

func TestExecuteAttachesFile(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	engine := &fakeEngine{}

	workflowNode := &models.WorkflowNode{
		ID:   "node-1",
		Type: models.NodeTypeMessage,
		Data: map[string]any{
			"content":     "See attached",
			"messageType": "document",
			"fileUrl":     "https://files.example.com/doc.pdf",
		},
	}

	node, err := NewNode(workflowNode, protocol.Dependencies{Sender: sender})
	require.NoError(t, err)

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, models.MessageTypeDocument, sender.sent[0].messageType)
	require.NotNil(t, sender.sent[0].fileInfo)
	assert.Equal(t, "https://files.example.com/doc.pdf", sender.sent[0].fileInfo.URL)
}

func TestExecuteSendFailureFailsExecution(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: errors.New("transport down")}
	engine := &fakeEngine{}

	workflowNode := &models.WorkflowNode{
		ID:   "node-1",
		Type: models.NodeTypeMessage,
		Data: map[string]any{"content": "Hello"},
	}

	node, err := NewNode(workflowNode, protocol.Dependencies{Sender: sender})
	require.NoError(t, err)

	require.NoError(t, node.Execute(context.Background(), testExecution(), &models.Workflow{}, engine))

	require.Len(t, engine.logs, 1)
	assert.Equal(t, models.LogStatusError, engine.logs[0].Status)
	assert.ErrorContains(t, engine.failedWith, "transport down")
	assert.Empty(t, engine.advancedTo)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 50))

	long := ""
	for range 60 {
		long += "a"
	}

	assert.Len(t, truncate(long, 50), 53)
}
