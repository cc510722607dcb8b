// Package conditional provides the condition node, which branches the
// execution on a context variable predicate.
package conditional

import (
	"context"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// Factory creates condition node executors.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory(_ protocol.Dependencies) protocol.NodeFactory {
	return &Factory{}
}

// Create creates a condition node executor bound to the given node.
func (f *Factory) Create(_ context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewNode(node)
}

// ID returns the node type identifier.
func (f *Factory) ID() string {
	return string(models.NodeTypeCondition)
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Condition"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Evaluates a predicate over a context variable and follows the true or false branch edge. A missing branch edge completes the execution."
}

// Schema returns the JSON schema for condition node data.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{
				"type":        "string",
				"description": "Display name shown in execution logs",
			},
			"variable": map[string]any{
				"type":        "string",
				"description": "Context variable to check. Defaults to lastResponse.",
			},
			"conditionType": map[string]any{
				"type": "string",
				"enum": []string{"contains", "equals", "startsWith", "endsWith", "regex", "custom"},
			},
			"value": map[string]any{
				"type": "string",
			},
			"caseSensitive": map[string]any{
				"type":        "boolean",
				"description": "Defaults to true",
			},
		},
		"required": []string{"conditionType", "value"},
	}
}
