package message

import (
	"context"
	"fmt"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
	"github.com/chatflow-io/chatflow/pkg/template"
)

const previewLength = 50

// Node sends one interpolated message and advances.
type Node struct {
	node   *models.WorkflowNode
	data   models.MessageNodeData
	sender protocol.Sender
}

// NewNode creates a message node executor from the node's raw data.
func NewNode(node *models.WorkflowNode, deps protocol.Dependencies) (*Node, error) {
	var data models.MessageNodeData
	if err := models.DecodeNodeData(node, &data); err != nil {
		return nil, err
	}

	return &Node{node: node, data: data, sender: deps.Sender}, nil
}

// Execute interpolates the content, sends it to the execution's chat on
// behalf of the acting user, logs the outcome and advances. A send failure
// fails the execution.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, engine protocol.EngineHandle) error {
	content := template.Interpolate(n.data.Content, execution.Context)

	messageType := models.MessageType(n.data.MessageType)
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	var fileInfo *models.FileInfo
	if n.data.FileURL != "" {
		fileInfo = &models.FileInfo{URL: n.data.FileURL}
	}

	if err := n.sender.SendMessage(ctx, execution.ChatID, execution.UserID, content, messageType, fileInfo); err != nil {
		_ = engine.AppendLog(ctx, execution.ID, models.ExecutionLog{
			NodeID:   n.node.ID,
			NodeName: n.node.Label(),
			Action:   "Send Message",
			Status:   models.LogStatusError,
			Message:  fmt.Sprintf("Failed to send message: %s", err),
		})

		return engine.Fail(ctx, execution.ID, fmt.Errorf("send message: %w", err))
	}

	if err := engine.AppendLog(ctx, execution.ID, models.ExecutionLog{
		NodeID:   n.node.ID,
		NodeName: n.node.Label(),
		Action:   "Send Message",
		Status:   models.LogStatusSuccess,
		Message:  fmt.Sprintf("Sent message: %q", truncate(content, previewLength)),
		Data:     map[string]any{"content": content},
	}); err != nil {
		return err
	}

	return engine.Advance(ctx, execution.ID, n.node.ID)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "..."
}
