package waitresponse

import (
	"context"
	"fmt"
	"time"

	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

const previewLength = 50

// Node suspends the execution until a correlated response or the timeout.
type Node struct {
	node   *models.WorkflowNode
	data   models.WaitForResponseNodeData
	sender protocol.Sender
}

// NewNode creates a waitForResponse node executor from the node's raw data.
func NewNode(node *models.WorkflowNode, deps protocol.Dependencies) (*Node, error) {
	var data models.WaitForResponseNodeData
	if err := models.DecodeNodeData(node, &data); err != nil {
		return nil, err
	}

	return &Node{node: node, data: data, sender: deps.Sender}, nil
}

// Execute logs the wait and suspends on a response listener, plus a timer
// when a timeout is configured. The response writes lastResponse,
// lastMessageId and the optional saveAs variable into the context. The
// timeout continues traversal, optionally sending a verbatim timeout
// message first; it is an info event, not a failure.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, engine protocol.EngineHandle) error {
	if err := engine.AppendLog(ctx, execution.ID, models.ExecutionLog{
		NodeID:   n.node.ID,
		NodeName: n.node.Label(),
		Action:   "Wait for Response",
		Status:   models.LogStatusInfo,
		Message:  "Waiting for user response...",
	}); err != nil {
		return err
	}

	executionID := execution.ID
	chatID := execution.ChatID
	userID := execution.UserID
	nodeID := n.node.ID
	label := n.node.Label()
	data := n.data

	spec := protocol.WaitSpec{
		NodeID: nodeID,
		Listen: true,
		OnResponse: func(ctx context.Context, response correlator.Response) {
			values := map[string]any{
				"lastResponse":  response.Content,
				"lastMessageId": response.MessageID,
			}
			if data.SaveAs != "" {
				values[data.SaveAs] = response.Content
			}

			// Context and log failures must not strand the execution.
			_ = engine.SetContextValues(ctx, executionID, values)

			_ = engine.AppendLog(ctx, executionID, models.ExecutionLog{
				NodeID:   nodeID,
				NodeName: label,
				Action:   "Response Received",
				Status:   models.LogStatusSuccess,
				Message:  fmt.Sprintf("Received response: %q", truncate(response.Content, previewLength)),
				Data:     map[string]any{"response": response.Content},
			})

			_ = engine.Advance(ctx, executionID, nodeID)
		},
	}

	if data.Timeout > 0 {
		spec.Timeout = time.Duration(data.Timeout) * time.Millisecond
		spec.OnTimeout = func(ctx context.Context) {
			_ = engine.AppendLog(ctx, executionID, models.ExecutionLog{
				NodeID:   nodeID,
				NodeName: label,
				Action:   "Response Timeout",
				Status:   models.LogStatusInfo,
				Message:  "Response timeout - continuing workflow",
			})

			if data.TimeoutMessage != "" {
				// Sent verbatim: the timeout text is authored as-is, with
				// no variable interpolation.
				_ = n.sender.SendMessage(ctx, chatID, userID, data.TimeoutMessage, models.MessageTypeText, nil)
			}

			_ = engine.Advance(ctx, executionID, nodeID)
		}
	}

	return engine.Wait(ctx, executionID, spec)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "..."
}
