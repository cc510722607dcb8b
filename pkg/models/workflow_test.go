package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphFixture() *Workflow {
	return &Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Name:   "fixture",
		Nodes: []*WorkflowNode{
			{ID: "start", Type: NodeTypeMessage},
			{ID: "check", Type: NodeTypeCondition},
			{ID: "yes", Type: NodeTypeMessage},
			{ID: "no", Type: NodeTypeMessage},
		},
		Edges: []*WorkflowEdge{
			{ID: "e1", Source: "start", Target: "check"},
			{ID: "e2", Source: "check", Target: "yes", SourceHandle: "true"},
			{ID: "e3", Source: "check", Target: "no", SourceHandle: "false"},
		},
	}
}

func TestWorkflow_StartNode(t *testing.T) {
	wf := graphFixture()

	start := wf.StartNode()
	require.NotNil(t, start)
	assert.Equal(t, "start", start.ID)
}

func TestWorkflow_StartNode_CycleHasNoEntry(t *testing.T) {
	wf := &Workflow{
		Nodes: []*WorkflowNode{
			{ID: "a", Type: NodeTypeMessage},
			{ID: "b", Type: NodeTypeMessage},
		},
		Edges: []*WorkflowEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}

	assert.Nil(t, wf.StartNode())
}

func TestWorkflow_DefaultEdgeFrom(t *testing.T) {
	wf := graphFixture()

	edge := wf.DefaultEdgeFrom("start")
	require.NotNil(t, edge)
	assert.Equal(t, "check", edge.Target)

	// Condition node has only handled edges, no default successor.
	assert.Nil(t, wf.DefaultEdgeFrom("check"))
	assert.Nil(t, wf.DefaultEdgeFrom("yes"))
}

func TestWorkflow_BranchEdgeFrom(t *testing.T) {
	wf := graphFixture()

	trueEdge := wf.BranchEdgeFrom("check", "true")
	require.NotNil(t, trueEdge)
	assert.Equal(t, "yes", trueEdge.Target)

	falseEdge := wf.BranchEdgeFrom("check", "false")
	require.NotNil(t, falseEdge)
	assert.Equal(t, "no", falseEdge.Target)

	assert.Nil(t, wf.BranchEdgeFrom("start", "true"))
}

func TestWorkflow_NodeByID(t *testing.T) {
	wf := graphFixture()

	require.NotNil(t, wf.NodeByID("check"))
	assert.Nil(t, wf.NodeByID("missing"))
}
