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

// AutomationRepository handles automation-related database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

const automationColumns = `
	id
  , owner
  , name
  , description
  , webhook_url
  , webhook_method
  , webhook_headers
  , webhook_params
  , schedule
  , is_active
  , created_at
  , updated_at
`

// Automations returns all automations owned by the given user.
func (r *AutomationRepository) Automations(ctx context.Context, owner string) ([]*models.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE owner = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

// ScheduledAutomations returns every active automation with a non-empty
// schedule, across owners.
func (r *AutomationRepository) ScheduledAutomations(ctx context.Context) ([]*models.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE is_active = TRUE
		  AND schedule <> ''
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled automations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

// AutomationByID returns an automation by its ID.
func (r *AutomationRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE id = $1
	`

	automation, err := scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAutomationNotFound
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

// SaveAutomation inserts or updates an automation.
func (r *AutomationRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	headersJSON, err := json.Marshal(automation.WebhookHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook headers: %w", err)
	}

	paramsJSON, err := json.Marshal(automation.WebhookParams)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook params: %w", err)
	}

	query := `
		INSERT INTO automations (id, owner, name, description,
webhook_url, webhook_method, webhook_headers, webhook_params, schedule, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			webhook_url = EXCLUDED.webhook_url,
			webhook_method = EXCLUDED.webhook_method,
			webhook_headers = EXCLUDED.webhook_headers,
			webhook_params = EXCLUDED.webhook_params,
			schedule = EXCLUDED.schedule,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.Owner,
		automation.Name,
		automation.Description,
		automation.WebhookURL,
		automation.WebhookMethod,
		headersJSON,
		paramsJSON,
		automation.Schedule,
		automation.IsActive,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", mapError(err))
	}

	return nil
}

// DeleteAutomation removes an automation owned by the given user.
func (r *AutomationRepository) DeleteAutomation(ctx context.Context, owner, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automations WHERE id = $1 AND owner = $2", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish a foreign automation from a missing one.
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM automations WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check automation existence: %w", err)
		}

		if exists {
			return persistence.ErrPermissionDenied
		}

		return persistence.ErrAutomationNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row rowScanner) (*models.Automation, error) {
	var (
		automation  models.Automation
		headersJSON []byte
		paramsJSON  []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.Owner,
		&automation.Name,
		&automation.Description,
		&automation.WebhookURL,
		&automation.WebhookMethod,
		&headersJSON,
		&paramsJSON,
		&automation.Schedule,
		&automation.IsActive,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headersJSON) > 0 {
		err = json.Unmarshal(headersJSON, &automation.WebhookHeaders)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal webhook headers: %w", err)
		}
	}

	if len(paramsJSON) > 0 {
		err = json.Unmarshal(paramsJSON, &automation.WebhookParams)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal webhook params: %w", err)
		}
	}

	return &automation, nil
}
