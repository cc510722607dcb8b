package cmd

import (
	"log/slog"

	"github.com/chatflow-io/chatflow/pkg/protocol"
	"github.com/chatflow-io/chatflow/pkg/registry"
)

// NewRegistry builds a node registry with the built-in node types wired to
// the given dependencies.
func NewRegistry(logger *slog.Logger, deps protocol.Dependencies) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(deps)

	return reg
}
