// Package delay provides the delay node, which suspends an execution for a
// fixed duration.
package delay

import (
	"context"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// Factory creates delay node executors.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory(_ protocol.Dependencies) protocol.NodeFactory {
	return &Factory{}
}

// Create creates a delay node executor bound to the given node.
func (f *Factory) Create(_ context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewNode(node)
}

// ID returns the node type identifier.
func (f *Factory) ID() string {
	return string(models.NodeTypeDelay)
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Delay"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Pauses the execution for a fixed duration before continuing. The wait is in-process and not persisted."
}

// Schema returns the JSON schema for delay node data.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{
				"type":        "string",
				"description": "Display name shown in execution logs",
			},
			"duration": map[string]any{
				"type":    "number",
				"minimum": 0,
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []string{"seconds", "minutes", "hours", "days"},
			},
		},
		"required": []string{"duration", "unit"},
	}
}
