package models

import (
	"fmt"
	"strconv"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting" // timer or response pending
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Paused counts as terminal from the engine's perspective: there is no
// automatic resume.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusPaused:
		return true
	default:
		return false
	}
}

// LogStatus classifies an execution log entry.
type LogStatus string

const (
	LogStatusInfo    LogStatus = "info"
	LogStatusSuccess LogStatus = "success"
	LogStatusError   LogStatus = "error"
)

// ExecutionLog is one append-only entry of an execution's history. It feeds
// the user-facing execution timeline, not replay or recovery.
type ExecutionLog struct {
	Timestamp time.Time      `json:"timestamp"`
	NodeID    string         `json:"nodeId"`
	NodeName  string         `json:"nodeName"`
	Action    string         `json:"action"`
	Status    LogStatus      `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// ExecutionContext is the mutable variable map of one execution. It always
// contains lastResponse and lastMessageId once a waitForResponse node has
// completed, plus any saveAs-named entries.
type ExecutionContext map[string]any

// StringValue returns the context value under key rendered as a string, or
// "" when absent.
func (c ExecutionContext) StringValue(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return stringify(v)
}

// stringify renders context values the way the chat surface shows them:
// floats without a trailing ".000000", bools as true/false.
func stringify(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// WorkflowExecution is the persisted record of one run of a workflow. The
// engine never deletes these; they are retained for audit.
type WorkflowExecution struct {
	ID            string           `json:"id"`
	WorkflowID    string           `json:"workflowId"`
	UserID        string           `json:"userId"`
	ChatID        string           `json:"chatId"`
	Status        ExecutionStatus  `json:"status"`
	CurrentNodeID string           `json:"currentNodeId,omitempty"`
	Context       ExecutionContext `json:"context"`
	StartedAt     time.Time        `json:"startedAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	Error         string           `json:"error,omitempty"`
	Logs          []ExecutionLog   `json:"logs"`
}

// ExecutionUpdate is a partial, last-writer-wins update of an execution
// record. Nil fields are left untouched.
type ExecutionUpdate struct {
	Status        *ExecutionStatus
	CurrentNodeID *string
	Context       ExecutionContext
	CompletedAt   *time.Time
	Error         *string
}

// Apply mutates the execution in place with the supplied fields.
func (u ExecutionUpdate) Apply(execution *WorkflowExecution) {
	if u.Status != nil {
		execution.Status = *u.Status
	}

	if u.CurrentNodeID != nil {
		execution.CurrentNodeID = *u.CurrentNodeID
	}

	if u.Context != nil {
		execution.Context = u.Context
	}

	if u.CompletedAt != nil {
		execution.CompletedAt = u.CompletedAt
	}

	if u.Error != nil {
		execution.Error = *u.Error
	}
}
