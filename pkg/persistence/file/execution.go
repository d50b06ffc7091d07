package file

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/google/uuid"
)

const executionKind = "executions"

// ExecutionRepository stores execution documents on disk. Owner scoping goes
// through the owning automation, as executions carry no owner of their own.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	return writeDocument(r.root, executionKind, execution.ID, execution)
}

func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var existing models.Execution

	found, err := readDocument(r.root, executionKind, execution.ID, &existing)
	if err != nil {
		return err
	}

	if !found {
		return persistence.ErrExecutionNotFound
	}

	execution.CreatedAt = existing.CreatedAt
	execution.UpdatedAt = time.Now().UTC()

	return writeDocument(r.root, executionKind, execution.ID, execution)
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var execution models.Execution

	found, err := readDocument(r.root, executionKind, id, &execution)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrExecutionNotFound
	}

	return &execution, nil
}

func (r *ExecutionRepository) Executions(ctx context.Context, owner string, limit int) ([]*models.Execution, error) {
	executions, err := r.ownerExecutions(owner)
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (r *ExecutionRepository) CountExecutionsByStatus(ctx context.Context, owner string) (map[models.ExecutionStatus]int64, error) {
	executions, err := r.ownerExecutions(owner)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.ExecutionStatus]int64)
	for _, execution := range executions {
		counts[execution.Status]++
	}

	return counts, nil
}

func (r *ExecutionRepository) ownerExecutions(owner string) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listDocumentIDs(r.root, executionKind)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]string)
	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		var execution models.Execution

		found, err := readDocument(r.root, executionKind, id, &execution)
		if err != nil {
			return nil, err
		}

		if !found {
			continue
		}

		automationOwner, cached := owners[execution.AutomationID]
		if !cached {
			var automation models.Automation

			found, err := readDocument(r.root, automationKind, execution.AutomationID, &automation)
			if err != nil {
				return nil, err
			}

			if found {
				automationOwner = automation.Owner
			}

			owners[execution.AutomationID] = automationOwner
		}

		if automationOwner != owner {
			continue
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}
