// Package registry holds the node factories and creates validated node
// executors for the engine.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

// CreateNode validates the node's data against the factory schema and
// returns a bound executor.
func (r *Registry) CreateNode(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	factory, ok := r.nodeFactories[string(node.Type)]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", node.Type)
	}

	if err := validateJSONSchema(node.Data, factory.Schema()); err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	return factory.Create(ctx, node)
}

// AvailableNodeTypes returns the registered node type identifiers.
func (r *Registry) AvailableNodeTypes() []string {
	types := make([]string, 0, len(r.nodeFactories))
	for nodeType := range r.nodeFactories {
		types = append(types, nodeType)
	}

	return types
}

// NodeFactory returns the factory for a node type, if registered.
func (r *Registry) NodeFactory(nodeType string) (protocol.NodeFactory, bool) {
	factory, ok := r.nodeFactories[nodeType]

	return factory, ok
}

// validateJSONSchema validates node data against its factory's JSON schema.
func validateJSONSchema(data map[string]any, schema map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, resultError := range result.Errors() {
			errors = append(errors, resultError.String())
		}

		return fmt.Errorf("node data validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
