package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// CreateExecution inserts the initial running record for an execution.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	dataJSON, err := marshalExecutionData(execution.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_executions (id, automation_id, status, execution_data, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.AutomationID,
		execution.Status,
		dataJSON,
		execution.ErrorMessage,
		execution.CreatedAt,
		execution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", mapError(err))
	}

	return nil
}

// UpdateExecution commits the terminal state of an existing execution.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	execution.UpdatedAt = time.Now().UTC()

	dataJSON, err := marshalExecutionData(execution.Data)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_executions
		SET status = $2, execution_data = $3, error_message = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		dataJSON,
		execution.ErrorMessage,
		execution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrExecutionNotFound
	}

	return nil
}

// ExecutionByID returns an execution by its ID.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT id, automation_id, status, execution_data, error_message, created_at, updated_at
		FROM automation_executions
		WHERE id = $1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Executions returns the most recent executions across the owner's
// automations, newest first. A non-positive limit returns everything.
func (r *ExecutionRepository) Executions(ctx context.Context, owner string, limit int) ([]*models.Execution, error) {
	query := `
		SELECT e.id, e.automation_id, e.status, e.execution_data, e.error_message, e.created_at, e.updated_at
		FROM automation_executions e
		JOIN automations a ON a.id = e.automation_id
		WHERE a.owner = $1
		ORDER BY e.created_at DESC
	`

	args := []any{owner}

	if limit > 0 {
		query += " LIMIT $2"

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// CountExecutionsByStatus returns per-status execution counts for the
// owner's automations.
func (r *ExecutionRepository) CountExecutionsByStatus(ctx context.Context, owner string) (map[models.ExecutionStatus]int64, error) {
	query := `
		SELECT e.status, COUNT(*)
		FROM automation_executions e
		JOIN automations a ON a.id = e.automation_id
		WHERE a.owner = $1
		GROUP BY e.status
	`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution counts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make(map[models.ExecutionStatus]int64)

	for rows.Next() {
		var (
			status models.ExecutionStatus
			count  int64
		)

		err := rows.Scan(&status, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution count: %w", err)
		}

		counts[status] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution counts: %w", err)
	}

	return counts, nil
}

func marshalExecutionData(data any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution data: %w", err)
	}

	return dataJSON, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution models.Execution
		dataJSON  []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.AutomationID,
		&execution.Status,
		&dataJSON,
		&execution.ErrorMessage,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		err = json.Unmarshal(dataJSON, &execution.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution data: %w", err)
		}
	}

	return &execution, nil
}
