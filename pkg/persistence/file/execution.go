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

// ExecutionRepository stores execution records as JSON files under
// <root>/executions. Log appends are read-modify-write under the store
// mutex; within one execution the engine already serializes writers.
type ExecutionRepository struct {
	root string
	mu   *sync.Mutex
}

func (er *ExecutionRepository) path(id string) string {
	return filepath.Join(er.root, "executions", id+".json")
}

func (er *ExecutionRepository) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if err := writeJSON(er.path(execution.ID), execution); err != nil {
		return persistence.NewStoreError("CreateExecution", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.load(id)
}

func (er *ExecutionRepository) load(id string) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}

	err := readJSON(er.path(id), execution)
	if os.IsNotExist(err) {
		return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) UpdateExecution(_ context.Context, id string, update models.ExecutionUpdate) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.load(id)
	if err != nil {
		return err
	}

	update.Apply(execution)

	if err := writeJSON(er.path(id), execution); err != nil {
		return persistence.NewStoreError("UpdateExecution", id, err)
	}

	return nil
}

func (er *ExecutionRepository) AppendExecutionLog(_ context.Context, id string, entry models.ExecutionLog) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.load(id)
	if err != nil {
		return err
	}

	execution.Logs = append(execution.Logs, entry)

	if err := writeJSON(er.path(id), execution); err != nil {
		return persistence.NewStoreError("AppendExecutionLog", id, err)
	}

	return nil
}

func (er *ExecutionRepository) ExecutionsByUser(_ context.Context, userID string) ([]*models.WorkflowExecution, error) {
	return er.filter(func(e *models.WorkflowExecution) bool {
		return e.UserID == userID
	})
}

func (er *ExecutionRepository) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return er.filter(func(e *models.WorkflowExecution) bool {
		return e.WorkflowID == workflowID
	})
}

func (er *ExecutionRepository) filter(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	paths, err := listJSON(filepath.Join(er.root, "executions"))
	if err != nil {
		return nil, persistence.NewStoreError("ListExecutions", "", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(paths))

	for _, path := range paths {
		execution := &models.WorkflowExecution{}
		if err := readJSON(path, execution); err != nil {
			return nil, persistence.NewStoreError("ListExecutions", filepath.Base(path), err)
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}
