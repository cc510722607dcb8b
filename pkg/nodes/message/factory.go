// Package message provides the message node, which sends interpolated chat
// messages through the chat-send interface.
package message

import (
	"context"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// Factory creates message node executors.
type Factory struct {
	deps protocol.Dependencies
}

// NewFactory creates a new factory instance.
func NewFactory(deps protocol.Dependencies) protocol.NodeFactory {
	return &Factory{deps: deps}
}

// Create creates a message node executor bound to the given node.
func (f *Factory) Create(_ context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewNode(node, f.deps)
}

// ID returns the node type identifier.
func (f *Factory) ID() string {
	return string(models.NodeTypeMessage)
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Send Message"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Sends a chat message, interpolating {{variable}} placeholders from the execution context."
}

// Schema returns the JSON schema for message node data.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{
				"type":        "string",
				"description": "Display name shown in execution logs",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Message text. {{name}} tokens are replaced with execution context values.",
				"examples":    []string{"Hi {{name}}, thanks for reaching out!"},
			},
			"messageType": map[string]any{
				"type": "string",
				"enum": []string{"text", "image", "video", "document", "voice"},
			},
			"fileUrl": map[string]any{
				"type":        "string",
				"description": "Attachment URL for non-text message types",
			},
		},
		"required": []string{"content"},
	}
}
