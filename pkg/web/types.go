// Package web provides the HTTP handlers and REST API for workflows,
// executions, chat messages and scheduled messages.
package web

import (
	"time"

	"github.com/chatflow-io/chatflow/pkg/models"
)

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	UserID      string                 `json:"userId"      validate:"required"`
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Nodes       []*models.WorkflowNode `json:"nodes"       validate:"required,min=1,dive"`
	Edges       []*models.WorkflowEdge `json:"edges"       validate:"dive"`
	Trigger     models.WorkflowTrigger `json:"trigger"     validate:"required"`
	IsActive    bool                   `json:"isActive"`
	ChatID      string                 `json:"chatId,omitempty"`
}

// UpdateWorkflowRequest is the request body for updating a workflow. Nil
// fields are left untouched.
type UpdateWorkflowRequest struct {
	Name        *string                 `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                 `json:"description,omitempty"`
	Nodes       []*models.WorkflowNode  `json:"nodes,omitempty"       validate:"omitempty,min=1,dive"`
	Edges       []*models.WorkflowEdge  `json:"edges,omitempty"       validate:"omitempty,dive"`
	Trigger     *models.WorkflowTrigger `json:"trigger,omitempty"`
	IsActive    *bool                   `json:"isActive,omitempty"`
	ChatID      *string                 `json:"chatId,omitempty"`
}

// ActivateWorkflowRequest toggles trigger dispatch for a workflow.
type ActivateWorkflowRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// StartWorkflowRequest is the request body for manually starting a workflow.
type StartWorkflowRequest struct {
	UserID  string                  `json:"userId" validate:"required"`
	ChatID  string                  `json:"chatId" validate:"required"`
	Context models.ExecutionContext `json:"context,omitempty"`
}

// StartWorkflowResponse carries the created execution id.
type StartWorkflowResponse struct {
	ExecutionID string `json:"executionId"`
}

// SendMessageRequest is the request body for writing a chat message.
type SendMessageRequest struct {
	SenderID    string             `json:"senderId"    validate:"required"`
	Content     string             `json:"content"     validate:"required"`
	MessageType models.MessageType `json:"messageType,omitempty" validate:"omitempty,oneof=text image video document voice"`
	FileInfo    *models.FileInfo   `json:"fileInfo,omitempty"`
}

// CreateScheduledMessageRequest is the request body for queueing a message
// for future delivery.
type CreateScheduledMessageRequest struct {
	UserID       string                   `json:"userId"       validate:"required"`
	ChatID       string                   `json:"chatId"       validate:"required"`
	Content      string                   `json:"content"      validate:"required"`
	MessageType  models.MessageType       `json:"messageType,omitempty" validate:"omitempty,oneof=text image video document voice"`
	FileInfo     *models.FileInfo         `json:"fileInfo,omitempty"`
	ScheduledFor time.Time                `json:"scheduledFor" validate:"required"`
	Recurring    *models.RecurringMessage `json:"recurring,omitempty"`
}
