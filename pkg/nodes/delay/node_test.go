package delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

type fakeEngine struct {
	logs       []models.ExecutionLog
	advancedTo []string
	waits      []protocol.WaitSpec
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

func (e *fakeEngine) SetContextValues(_ context.Context, _ string, _ map[string]any) error {
	return nil
}

func TestExecuteSchedulesTimerAndAdvancesOnFire(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}

	workflowNode := &models.WorkflowNode{
		ID:   "node-1",
		Type: models.NodeTypeDelay,
		Data: map[string]any{"label": "Cool down", "duration": float64(2), "unit": "minutes"},
	}

	node, err := NewNode(workflowNode)
	require.NoError(t, err)

	execution := &models.WorkflowExecution{ID: "exec-1", Status: models.ExecutionStatusRunning}
	require.NoError(t, node.Execute(context.Background(), execution, &models.Workflow{}, engine))

	require.Len(t, engine.waits, 1)
	assert.Equal(t, "node-1", engine.waits[0].NodeID)
	assert.Equal(t, 2*time.Minute, engine.waits[0].Timeout)
	assert.False(t, engine.waits[0].Listen)

	require.Len(t, engine.logs, 1)
	assert.Equal(t, "Delay", engine.logs[0].Action)
	assert.Equal(t, models.LogStatusInfo, engine.logs[0].Status)
	assert.Equal(t, "Waiting for 2 minutes", engine.logs[0].Message)
	assert.Empty(t, engine.advancedTo)

	engine.waits[0].OnTimeout(context.Background())

	require.Len(t, engine.logs, 2)
	assert.Equal(t, "Delay Complete", engine.logs[1].Action)
	assert.Equal(t, models.LogStatusSuccess, engine.logs[1].Status)
	assert.Equal(t, []string{"node-1"}, engine.advancedTo)
}

func TestExecuteZeroDelay(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}

	workflowNode := &models.WorkflowNode{
		ID:   "node-1",
		Type: models.NodeTypeDelay,
		Data: map[string]any{"duration": float64(0), "unit": "seconds"},
	}

	node, err := NewNode(workflowNode)
	require.NoError(t, err)

	execution := &models.WorkflowExecution{ID: "exec-1", Status: models.ExecutionStatusRunning}
	require.NoError(t, node.Execute(context.Background(), execution, &models.Workflow{}, engine))

	require.Len(t, engine.waits, 1)
	assert.Equal(t, time.Duration(0), engine.waits[0].Timeout)
}
