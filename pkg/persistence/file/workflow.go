package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// WorkflowRepository stores workflow definitions as JSON files under
// <root>/workflows.
type WorkflowRepository struct {
	root string
	mu   *sync.Mutex
}

func (wr *WorkflowRepository) path(id string) string {
	return filepath.Join(wr.root, "workflows", id+".json")
}

func (wr *WorkflowRepository) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if err := writeJSON(wr.path(workflow.ID), workflow); err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.load(id)
}

func (wr *WorkflowRepository) load(id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	err := readJSON(wr.path(id), workflow)
	if os.IsNotExist(err) {
		return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) DeleteWorkflow(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(wr.path(id))
	if os.IsNotExist(err) {
		return persistence.NewStoreError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return persistence.NewStoreError("DeleteWorkflow", id, err)
	}

	return nil
}

func (wr *WorkflowRepository) WorkflowsByUser(ctx context.Context, userID string) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool {
		return w.UserID == userID
	})
}

func (wr *WorkflowRepository) ActiveWorkflowsByTrigger(_ context.Context, userID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool {
		return w.UserID == userID && w.IsActive && w.Trigger.Type == triggerType
	})
}

func (wr *WorkflowRepository) ActiveWorkflowsByChat(_ context.Context, chatID string) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool {
		return w.IsActive && w.ChatID == chatID
	})
}

func (wr *WorkflowRepository) ActiveWorkflows(_ context.Context) ([]*models.Workflow, error) {
	return wr.filter(func(w *models.Workflow) bool {
		return w.IsActive
	})
}

// filter loads every workflow and keeps those matching the predicate,
// newest first. Fine for the file store's scale; a database backend indexes
// these queries instead.
func (wr *WorkflowRepository) filter(keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	paths, err := listJSON(filepath.Join(wr.root, "workflows"))
	if err != nil {
		return nil, persistence.NewStoreError("ListWorkflows", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(paths))

	for _, path := range paths {
		workflow := &models.Workflow{}
		if err := readJSON(path, workflow); err != nil {
			return nil, persistence.NewStoreError("ListWorkflows", filepath.Base(path), err)
		}

		if keep(workflow) {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})

	return workflows, nil
}
