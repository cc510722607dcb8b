package conditional

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chatflow-io/chatflow/pkg/condition"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// Node evaluates its predicate and routes the execution down the matching
// branch edge.
type Node struct {
	node *models.WorkflowNode
	data models.ConditionNodeData
}

// NewNode creates a condition node executor from the node's raw data.
func NewNode(node *models.WorkflowNode) (*Node, error) {
	var data models.ConditionNodeData
	if err := models.DecodeNodeData(node, &data); err != nil {
		return nil, err
	}

	return &Node{node: node, data: data}, nil
}

// Execute evaluates the predicate, logs the boolean result and jumps to the
// matching branch edge's target. A missing branch edge completes the
// execution rather than failing it.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, engine protocol.EngineHandle) error {
	result := condition.Evaluate(&n.data, execution.Context)

	if err := engine.AppendLog(ctx, execution.ID, models.ExecutionLog{
		NodeID:   n.node.ID,
		NodeName: n.node.Label(),
		Action:   "Evaluate Condition",
		Status:   models.LogStatusSuccess,
		Message:  fmt.Sprintf("Condition evaluated to: %t", result),
		Data: map[string]any{
			"result":        result,
			"variable":      n.data.VariableName(),
			"conditionType": string(n.data.ConditionType),
			"value":         n.data.Value,
		},
	}); err != nil {
		return err
	}

	edge := workflow.BranchEdgeFrom(n.node.ID, strconv.FormatBool(result))
	if edge == nil {
		return engine.Complete(ctx, execution.ID)
	}

	return engine.AdvanceTo(ctx, execution.ID, edge.Target)
}
