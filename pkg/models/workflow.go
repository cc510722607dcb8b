// Package models defines the core domain models for chat workflow automation.
package models

import "time"

// TriggerType identifies what kind of event starts a workflow.
type TriggerType string

const (
	TriggerTypeManual          TriggerType = "manual"
	TriggerTypeScheduled       TriggerType = "scheduled"
	TriggerTypeMessageReceived TriggerType = "messageReceived"
	// TriggerTypeChatOpened exists in stored definitions but is fired by the
	// chat UI, never by the engine runtime.
	TriggerTypeChatOpened TriggerType = "chatOpened"
)

// RecurringFrequency is the repeat period of a recurring trigger or message.
type RecurringFrequency string

const (
	FrequencyDaily   RecurringFrequency = "daily"
	FrequencyWeekly  RecurringFrequency = "weekly"
	FrequencyMonthly RecurringFrequency = "monthly"
)

// RecurringSchedule describes how a scheduled trigger repeats.
type RecurringSchedule struct {
	Frequency  RecurringFrequency `json:"frequency"             validate:"required,oneof=daily weekly monthly"`
	Time       string             `json:"time,omitempty"`       // HH:mm, time of day
	DayOfWeek  *int               `json:"dayOfWeek,omitempty"`  // 0-6, weekly only
	DayOfMonth *int               `json:"dayOfMonth,omitempty"` // 1-31, monthly only
}

// MessageCondition filters which incoming messages fire a
// messageReceived-triggered workflow. Empty condition matches everything.
type MessageCondition struct {
	Contains string `json:"contains,omitempty"`
	Equals   string `json:"equals,omitempty"`
	Regex    string `json:"regex,omitempty"`
}

// WorkflowTrigger describes the event that starts an execution.
type WorkflowTrigger struct {
	Type             TriggerType        `json:"type"                       validate:"required,oneof=manual scheduled messageReceived chatOpened"`
	ScheduledTime    string             `json:"scheduledTime,omitempty"` // ISO timestamp, one-shot scheduled triggers
	Recurring        *RecurringSchedule `json:"recurring,omitempty"`
	MessageCondition *MessageCondition  `json:"messageCondition,omitempty"`
}

// WorkflowEdge is a directed connection between two nodes. SourceHandle is
// set only on edges leaving condition nodes ("true" / "false"); an edge
// without a handle is the default successor of a non-branching node.
type WorkflowEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Workflow is the immutable-per-run definition of an automation graph.
// The builder UI creates and edits these; the engine only reads them.
type Workflow struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"      validate:"required"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Nodes       []*WorkflowNode `json:"nodes"       validate:"required,min=1,dive"`
	Edges       []*WorkflowEdge `json:"edges"       validate:"dive"`
	Trigger     WorkflowTrigger `json:"trigger"     validate:"required"`
	IsActive    bool            `json:"isActive"`
	ChatID      string          `json:"chatId,omitempty"` // scopes message-triggered workflows to one chat
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// StartNode returns the entry node: the first node with no incoming edge.
// Returns nil when every node is someone's target, which means the graph has
// no entry point.
func (w *Workflow) StartNode() *WorkflowNode {
	hasIncoming := make(map[string]bool, len(w.Edges))
	for _, e := range w.Edges {
		hasIncoming[e.Target] = true
	}

	for _, n := range w.Nodes {
		if !hasIncoming[n.ID] {
			return n
		}
	}

	return nil
}

// DefaultEdgeFrom returns the outgoing edge of nodeID that carries no source
// handle, i.e. the single successor of a non-branching node.
func (w *Workflow) DefaultEdgeFrom(nodeID string) *WorkflowEdge {
	for _, e := range w.Edges {
		if e.Source == nodeID && e.SourceHandle == "" {
			return e
		}
	}

	return nil
}

// BranchEdgeFrom returns the outgoing edge of a condition node tagged with
// the given handle ("true" or "false").
func (w *Workflow) BranchEdgeFrom(nodeID, handle string) *WorkflowEdge {
	for _, e := range w.Edges {
		if e.Source == nodeID && e.SourceHandle == handle {
			return e
		}
	}

	return nil
}
