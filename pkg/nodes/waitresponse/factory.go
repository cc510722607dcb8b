// Package waitresponse provides the waitForResponse node, which suspends an
// execution until a chat response arrives or an optional timeout fires.
package waitresponse

import (
	"context"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// Factory creates waitForResponse node executors.
type Factory struct {
	deps protocol.Dependencies
}

// NewFactory creates a new factory instance.
func NewFactory(deps protocol.Dependencies) protocol.NodeFactory {
	return &Factory{deps: deps}
}

// Create creates a waitForResponse node executor bound to the given node.
func (f *Factory) Create(_ context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewNode(node, f.deps)
}

// ID returns the node type identifier.
func (f *Factory) ID() string {
	return string(models.NodeTypeWaitForResponse)
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Wait for Response"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Suspends the execution until the chat counterpart replies, storing the reply in the execution context. Timing out continues the workflow instead of failing it."
}

// Schema returns the JSON schema for waitForResponse node data.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{
				"type":        "string",
				"description": "Display name shown in execution logs",
			},
			"saveAs": map[string]any{
				"type":        "string",
				"description": "Extra context variable name to store the response under",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Timeout in milliseconds. Zero or absent waits indefinitely.",
			},
			"timeoutMessage": map[string]any{
				"type":        "string",
				"description": "Message sent verbatim when the timeout fires. No interpolation.",
			},
		},
	}
}
