package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// WorkflowRepository stores workflows under chatflow:workflows:<id> with a
// per-user index set.
type WorkflowRepository struct {
	client goredis.UniversalClient
}

func (wr *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if err := setJSON(ctx, wr.client, key("workflows", workflow.ID), workflow); err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	if err := wr.client.SAdd(ctx, key("workflows", "by-user", workflow.UserID), workflow.ID).Err(); err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return wr.client.SAdd(ctx, key("workflows", "all"), workflow.ID).Err()
}

func (wr *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	found, err := getJSON(ctx, wr.client, key("workflows", id), workflow)
	if err != nil {
		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	if !found {
		return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	workflow, err := wr.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	if err := wr.client.Del(ctx, key("workflows", id)).Err(); err != nil {
		return persistence.NewStoreError("DeleteWorkflow", id, err)
	}

	wr.client.SRem(ctx, key("workflows", "by-user", workflow.UserID), id)

	return wr.client.SRem(ctx, key("workflows", "all"), id).Err()
}

func (wr *WorkflowRepository) WorkflowsByUser(ctx context.Context, userID string) ([]*models.Workflow, error) {
	return wr.loadSet(ctx, key("workflows", "by-user", userID), nil)
}

func (wr *WorkflowRepository) ActiveWorkflowsByTrigger(ctx context.Context, userID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return wr.loadSet(ctx, key("workflows", "by-user", userID), func(w *models.Workflow) bool {
		return w.IsActive && w.Trigger.Type == triggerType
	})
}

func (wr *WorkflowRepository) ActiveWorkflowsByChat(ctx context.Context, chatID string) ([]*models.Workflow, error) {
	return wr.loadSet(ctx, key("workflows", "all"), func(w *models.Workflow) bool {
		return w.IsActive && w.ChatID == chatID
	})
}

func (wr *WorkflowRepository) ActiveWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return wr.loadSet(ctx, key("workflows", "all"), func(w *models.Workflow) bool {
		return w.IsActive
	})
}

func (wr *WorkflowRepository) loadSet(ctx context.Context, indexKey string, keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	ids, err := wr.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, persistence.NewStoreError("ListWorkflows", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow := &models.Workflow{}

		found, err := getJSON(ctx, wr.client, key("workflows", id), workflow)
		if err != nil {
			return nil, persistence.NewStoreError("ListWorkflows", id, err)
		}

		// Stale index entries are skipped, not errors.
		if !found {
			continue
		}

		if keep == nil || keep(workflow) {
			workflows = append(workflows, workflow)
		}
	}

	return workflows, nil
}
