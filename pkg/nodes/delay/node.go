package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// Node suspends the execution on a timer and advances when it fires.
type Node struct {
	node *models.WorkflowNode
	data models.DelayNodeData
}

// NewNode creates a delay node executor from the node's raw data.
func NewNode(node *models.WorkflowNode) (*Node, error) {
	var data models.DelayNodeData
	if err := models.DecodeNodeData(node, &data); err != nil {
		return nil, err
	}

	return &Node{node: node, data: data}, nil
}

// Execute logs the wait, moves the execution to waiting and schedules the
// timer. On fire the engine moves the execution back to running before the
// completion log and advance happen.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, engine protocol.EngineHandle) error {
	duration := time.Duration(n.data.Milliseconds()) * time.Millisecond

	if err := engine.AppendLog(ctx, execution.ID, models.ExecutionLog{
		NodeID:   n.node.ID,
		NodeName: n.node.Label(),
		Action:   "Delay",
		Status:   models.LogStatusInfo,
		Message:  fmt.Sprintf("Waiting for %v %s", n.data.Duration, n.data.Unit),
	}); err != nil {
		return err
	}

	executionID := execution.ID
	nodeID := n.node.ID
	label := n.node.Label()
	message := fmt.Sprintf("Delay of %v %s completed", n.data.Duration, n.data.Unit)

	return engine.Wait(ctx, executionID, protocol.WaitSpec{
		NodeID:  nodeID,
		Timeout: duration,
		OnTimeout: func(ctx context.Context) {
			// A log write failure must not strand the execution in waiting.
			_ = engine.AppendLog(ctx, executionID, models.ExecutionLog{
				NodeID:   nodeID,
				NodeName: label,
				Action:   "Delay Complete",
				Status:   models.LogStatusSuccess,
				Message:  message,
			})

			_ = engine.Advance(ctx, executionID, nodeID)
		},
	})
}
