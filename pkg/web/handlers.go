package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/chatflow-io/chatflow/pkg/chat"
	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/engine"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
	"github.com/chatflow-io/chatflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// ExecutionRunner is the engine surface the API needs: starting runs and
// halting them.
type ExecutionRunner interface {
	StartWorkflow(ctx context.Context, workflowID, userID, chatID string, triggerContext models.ExecutionContext) (string, error)
	PauseExecution(ctx context.Context, executionID string) error
	CancelExecution(ctx context.Context, executionID string) error
}

type APIHandlers struct {
	persistence persistence.Persistence
	runner      ExecutionRunner
	chat        *chat.Service
	validator   *validator.Validate
	registry    *registry.Registry
	clock       clock.Clock
}

func NewAPIHandlers(
	p persistence.Persistence,
	runner ExecutionRunner,
	chatService *chat.Service,
	validator *validator.Validate,
	registry *registry.Registry,
	clk clock.Clock,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		runner:      runner,
		chat:        chatService,
		validator:   validator,
		registry:    registry,
		clock:       clk,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryErr := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "ChatFlow API is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if repositoryErr != nil {
		status = "unhealthy"
		message = "ChatFlow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = repositoryErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"node_types": h.registry.AvailableNodeTypes(),
		},
		"timestamp": h.clock.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	userID := c.Query("user_id")
	chatID := c.Query("chat_id")
	triggerType := c.Query("trigger_type")

	repo := h.persistence.WorkflowRepository()

	var (
		workflows []*models.Workflow
		err       error
	)

	switch {
	case triggerType != "":
		if userID == "" {
			return badRequest(c, "trigger_type filter requires user_id")
		}

		workflows, err = repo.ActiveWorkflowsByTrigger(c.Context(), userID, models.TriggerType(triggerType))
	case chatID != "":
		workflows, err = repo.ActiveWorkflowsByChat(c.Context(), chatID)
	case userID != "":
		workflows, err = repo.WorkflowsByUser(c.Context(), userID)
	default:
		return badRequest(c, "user_id, chat_id or trigger_type query parameter is required")
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowRepository().WorkflowByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := h.clock.Now()
	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Trigger:     req.Trigger,
		IsActive:    req.IsActive,
		ChatID:      req.ChatID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.validateNodeConfigs(c.Context(), workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.WorkflowRepository().SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.persistence.WorkflowRepository().WorkflowByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.Trigger != nil {
		existing.Trigger = *req.Trigger
	}

	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if req.ChatID != nil {
		existing.ChatID = *req.ChatID
	}

	if err := h.validateNodeConfigs(c.Context(), existing); err != nil {
		return badRequest(c, err.Error())
	}

	existing.UpdatedAt = h.clock.Now()

	if err := h.persistence.WorkflowRepository().SaveWorkflow(c.Context(), existing); err != nil {
		return internalError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.persistence.WorkflowRepository().DeleteWorkflow(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ActivateWorkflow flips the active flag that gates trigger dispatch.
func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ActivateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.persistence.WorkflowRepository().WorkflowByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	workflow.IsActive = *req.IsActive
	workflow.UpdatedAt = h.clock.Now()

	if err := h.persistence.WorkflowRepository().SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := h.runner.StartWorkflow(c.Context(), id, req.UserID, req.ChatID, req.Context)
	if err != nil {
		if errors.Is(err, engine.ErrNoStartNode) {
			return badRequest(c, "workflow has no entry node")
		}

		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(StartWorkflowResponse{ExecutionID: executionID})
}

// validateNodeConfigs runs every node's data through its factory schema so
// a workflow with a malformed node never reaches the engine.
func (h *APIHandlers) validateNodeConfigs(ctx context.Context, workflow *models.Workflow) error {
	for _, node := range workflow.Nodes {
		if _, err := h.registry.CreateNode(ctx, node); err != nil {
			return err
		}
	}

	return nil
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	userID := c.Query("user_id")
	workflowID := c.Query("workflow_id")

	var (
		executions []*models.WorkflowExecution
		err        error
	)

	switch {
	case workflowID != "":
		executions, err = h.persistence.ExecutionRepository().ExecutionsByWorkflow(c.Context(), workflowID)
	case userID != "":
		executions, err = h.persistence.ExecutionRepository().ExecutionsByUser(c.Context(), userID)
	default:
		return badRequest(c, "user_id or workflow_id query parameter is required")
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.ExecutionRepository().ExecutionByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.runner.PauseExecution(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.runner.CancelExecution(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetChatMessages(c fiber.Ctx) error {
	chatID := c.Params("chatId")
	if chatID == "" {
		return badRequest(c, "Chat ID is required")
	}

	messages, err := h.persistence.MessageRepository().MessagesByChat(c.Context(), chatID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *APIHandlers) SendChatMessage(c fiber.Ctx) error {
	chatID := c.Params("chatId")
	if chatID == "" {
		return badRequest(c, "Chat ID is required")
	}

	var req SendMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.chat.SendMessage(c.Context(), chatID, req.SenderID, req.Content, req.MessageType, req.FileInfo)
	if err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

func (h *APIHandlers) CreateScheduledMessage(c fiber.Ctx) error {
	var req CreateScheduledMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := &models.ScheduledMessage{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		Content:      req.Content,
		MessageType:  messageType,
		FileInfo:     req.FileInfo,
		ScheduledFor: req.ScheduledFor,
		Status:       models.ScheduledStatusPending,
		Recurring:    req.Recurring,
		CreatedAt:    h.clock.Now(),
	}

	if err := h.persistence.ScheduledMessageRepository().SaveScheduledMessage(c.Context(), message); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

func (h *APIHandlers) GetScheduledMessages(c fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return badRequest(c, "user_id query parameter is required")
	}

	messages, err := h.persistence.ScheduledMessageRepository().ScheduledMessagesByUser(c.Context(), userID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"scheduledMessages": messages,
		"count":             len(messages),
	})
}

func (h *APIHandlers) GetScheduledMessage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Scheduled message ID is required")
	}

	message, err := h.persistence.ScheduledMessageRepository().ScheduledMessageByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Scheduled message not found")
		}

		return internalError(c, err)
	}

	return c.JSON(message)
}

// CancelScheduledMessage marks a pending message cancelled so the delivery
// poller skips it. Sent and failed messages cannot be cancelled.
func (h *APIHandlers) CancelScheduledMessage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Scheduled message ID is required")
	}

	repo := h.persistence.ScheduledMessageRepository()

	message, err := repo.ScheduledMessageByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Scheduled message not found")
		}

		return internalError(c, err)
	}

	if message.Status != models.ScheduledStatusPending {
		return badRequest(c, "only pending messages can be cancelled")
	}

	message.Status = models.ScheduledStatusCancelled
	if err := repo.SaveScheduledMessage(c.Context(), message); err != nil {
		return internalError(c, err)
	}

	return c.JSON(message)
}
