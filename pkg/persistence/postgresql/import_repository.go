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

// ImportRepository handles CSV import database operations.
type ImportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewImportRepository creates a new import repository.
func NewImportRepository(db *sql.DB, logger *slog.Logger) *ImportRepository {
	return &ImportRepository{db: db, logger: logger}
}

// SaveImport inserts or updates an import. Names are unique per owner.
func (r *ImportRepository) SaveImport(ctx context.Context, record *models.Import) error {
	now := time.Now().UTC()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate import ID: %w", err)
		}

		record.ID = id.String()
	}

	columnsJSON, err := json.Marshal(record.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal import columns: %w", err)
	}

	rowsJSON, err := json.Marshal(record.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal import rows: %w", err)
	}

	query := `
		INSERT INTO csv_imports (id, owner, name, filename, columns, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			filename = EXCLUDED.filename,
			columns = EXCLUDED.columns,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.Owner,
		record.Name,
		record.Filename,
		columnsJSON,
		rowsJSON,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save import: %w", mapError(err))
	}

	return nil
}

// Imports returns all imports owned by the given user, newest first.
func (r *ImportRepository) Imports(ctx context.Context, owner string) ([]*models.Import, error) {
	query := `
		SELECT id, owner, name, filename, columns, data, created_at, updated_at
		FROM csv_imports
		WHERE owner = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	imports := make([]*models.Import, 0)

	for rows.Next() {
		record, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}

		imports = append(imports, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating imports: %w", err)
	}

	return imports, nil
}

// ImportByID returns one import owned by the given user.
func (r *ImportRepository) ImportByID(ctx context.Context, owner, id string) (*models.Import, error) {
	query := `
		SELECT id, owner, name, filename, columns, data, created_at, updated_at
		FROM csv_imports
		WHERE id = $1 AND owner = $2
	`

	record, err := scanImport(r.db.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrImportNotFound
		}

		return nil, fmt.Errorf("failed to scan import: %w", err)
	}

	return record, nil
}

// DeleteImport removes an import owned by the given user.
func (r *ImportRepository) DeleteImport(ctx context.Context, owner, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM csv_imports WHERE id = $1 AND owner = $2", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete import: %w", mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM csv_imports WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check import existence: %w", err)
		}

		if exists {
			return persistence.ErrPermissionDenied
		}

		return persistence.ErrImportNotFound
	}

	return nil
}

// CountImports returns the number of imports owned by the given user.
func (r *ImportRepository) CountImports(ctx context.Context, owner string) (int64, error) {
	var count int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM csv_imports WHERE owner = $1", owner).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count imports: %w", err)
	}

	return count, nil
}

func scanImport(row rowScanner) (*models.Import, error) {
	var (
		record      models.Import
		columnsJSON []byte
		rowsJSON    []byte
	)

	err := row.Scan(
		&record.ID,
		&record.Owner,
		&record.Name,
		&record.Filename,
		&columnsJSON,
		&rowsJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(columnsJSON, &record.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal import columns: %w", err)
	}

	err = json.Unmarshal(rowsJSON, &record.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal import rows: %w", err)
	}

	return &record, nil
}
