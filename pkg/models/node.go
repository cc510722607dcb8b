package models

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies what a workflow node does when executed.
type NodeType string

const (
	NodeTypeMessage         NodeType = "message"
	NodeTypeDelay           NodeType = "delay"
	NodeTypeCondition       NodeType = "condition"
	NodeTypeWaitForResponse NodeType = "waitForResponse"
)

// DelayUnit is the unit of a delay node's duration.
type DelayUnit string

const (
	UnitSeconds DelayUnit = "seconds"
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

// ConditionType selects the predicate a condition node applies.
type ConditionType string

const (
	ConditionContains   ConditionType = "contains"
	ConditionEquals     ConditionType = "equals"
	ConditionStartsWith ConditionType = "startsWith"
	ConditionEndsWith   ConditionType = "endsWith"
	ConditionRegex      ConditionType = "regex"
	ConditionCustom     ConditionType = "custom"
)

// WorkflowNode is one step in a workflow graph. Data is a variant payload
// keyed by Type; the node packages decode it into the typed structs below.
type WorkflowNode struct {
	ID   string         `json:"id"   validate:"required"`
	Type NodeType       `json:"type" validate:"required,oneof=message delay condition waitForResponse"`
	Data map[string]any `json:"data"`
}

// Label returns the builder-assigned display name of the node, falling back
// to the node id. Used for the nodeName field of execution logs.
func (n *WorkflowNode) Label() string {
	if label, ok := n.Data["label"].(string); ok && label != "" {
		return label
	}

	return n.ID
}

// MessageNodeData configures a message node.
type MessageNodeData struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
}

// DelayNodeData configures a delay node.
type DelayNodeData struct {
	Duration float64   `json:"duration"`
	Unit     DelayUnit `json:"unit"`
}

// Milliseconds converts the duration/unit pair to milliseconds.
func (d DelayNodeData) Milliseconds() int64 {
	ms := d.Duration

	switch d.Unit {
	case UnitSeconds:
		ms *= 1000
	case UnitMinutes:
		ms *= 60 * 1000
	case UnitHours:
		ms *= 60 * 60 * 1000
	case UnitDays:
		ms *= 24 * 60 * 60 * 1000
	}

	return int64(ms)
}

// ConditionNodeData configures a condition node. Variable defaults to
// "lastResponse" and CaseSensitive defaults to true when absent.
type ConditionNodeData struct {
	Variable      string        `json:"variable,omitempty"`
	ConditionType ConditionType `json:"conditionType"`
	Value         string        `json:"value"`
	CaseSensitive *bool         `json:"caseSensitive,omitempty"`
}

// IsCaseSensitive reports the effective case sensitivity (default true).
func (d ConditionNodeData) IsCaseSensitive() bool {
	return d.CaseSensitive == nil || *d.CaseSensitive
}

// VariableName returns the context variable the condition checks.
func (d ConditionNodeData) VariableName() string {
	if d.Variable == "" {
		return "lastResponse"
	}

	return d.Variable
}

// WaitForResponseNodeData configures a waitForResponse node. Timeout is in
// milliseconds; zero means wait indefinitely.
type WaitForResponseNodeData struct {
	SaveAs         string `json:"saveAs,omitempty"`
	Timeout        int64  `json:"timeout,omitempty"`
	TimeoutMessage string `json:"timeoutMessage,omitempty"`
}

// DecodeNodeData decodes a node's raw data payload into the typed struct for
// its node kind. The round-trip through JSON keeps number and bool coercion
// consistent with what the builder stores.
func DecodeNodeData(node *WorkflowNode, out any) error {
	raw, err := json.Marshal(node.Data)
	if err != nil {
		return fmt.Errorf("failed to encode data of node %s: %w", node.ID, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode data of node %s: %w", node.ID, err)
	}

	return nil
}
