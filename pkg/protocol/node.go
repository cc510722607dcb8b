package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/models"
)

// NodeExecutor executes one node of a workflow. Implementations return
// control to the engine through the EngineHandle: Advance/AdvanceTo on
// success, Fail on error, Complete to finish early, Wait to suspend on a
// timer or response listener. A returned error is equivalent to calling
// Fail with it.
type NodeExecutor interface {
	Execute(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, engine EngineHandle) error
}

// NodeFactory creates executor instances bound to a concrete node and
// provides metadata about the node type.
type NodeFactory interface {
	// Create builds an executor for the given node. The node's data has
	// already been validated against Schema by the registry.
	Create(ctx context.Context, node *models.WorkflowNode) (NodeExecutor, error)

	// ID returns the node type identifier ("message", "delay", ...).
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema for the node's data payload.
	Schema() map[string]any
}

// WaitSpec describes what a suspended execution is waiting on. At least one
// of OnTimeout or Listen must be set. The engine guarantees exactly one of
// OnTimeout and OnResponse runs, with the execution already moved back to
// running; cancellation and pause win over both.
type WaitSpec struct {
	NodeID string

	// OnTimeout, when non-nil, schedules a timer for Timeout. A zero
	// Timeout fires immediately.
	Timeout   time.Duration
	OnTimeout func(ctx context.Context)

	// Listen registers a response listener on the execution's chat,
	// excluding the execution's acting user.
	Listen     bool
	OnResponse func(ctx context.Context, response correlator.Response)
}

// EngineHandle is the callback surface node executors use to drive the
// execution. All methods are safe for concurrent use.
type EngineHandle interface {
	// Advance follows the default outgoing edge of currentNodeID. Reaching
	// a node with no such edge completes the execution.
	Advance(ctx context.Context, executionID, currentNodeID string) error

	// AdvanceTo jumps directly to the named node, bypassing edge lookup.
	AdvanceTo(ctx context.Context, executionID, targetNodeID string) error

	// Complete finishes the execution with status completed.
	Complete(ctx context.Context, executionID string) error

	// Fail finishes the execution with status failed.
	Fail(ctx context.Context, executionID string, reason error) error

	// Wait suspends the execution until one of the registered events
	// claims the wake.
	Wait(ctx context.Context, executionID string, spec WaitSpec) error

	// AppendLog appends an entry to the execution's log, stamping the
	// timestamp if unset.
	AppendLog(ctx context.Context, executionID string, entry models.ExecutionLog) error

	// SetContextValues merges values into the execution's variable context
	// and persists it.
	SetContextValues(ctx context.Context, executionID string, values map[string]any) error
}

// Dependencies carries the shared collaborators node factories need.
type Dependencies struct {
	Sender Sender
	Logger *slog.Logger
}
