package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/google/uuid"
)

// SettingRepository handles settings rows and automation links.
type SettingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSettingRepository creates a new setting repository.
func NewSettingRepository(db *sql.DB, logger *slog.Logger) *SettingRepository {
	return &SettingRepository{db: db, logger: logger}
}

const settingColumns = `
	id
  , user_id
  , category
  , key
  , value
  , description
  , is_public
  , created_at
  , updated_at
`

// VisibleSettings returns global rows, rows owned by userID, and public
// rows, oldest first.
func (r *SettingRepository) VisibleSettings(ctx context.Context, userID string) ([]*models.Setting, error) {
	query := `
		SELECT ` + settingColumns + `
		FROM settings
		WHERE user_id IS NULL OR user_id = $1 OR is_public = true
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	settings := make([]*models.Setting, 0)

	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}

		settings = append(settings, setting)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return settings, nil
}

// UpsertSetting inserts a setting row or updates the existing row with the
// same scope, category and key.
func (r *SettingRepository) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	now := time.Now().UTC()

	if setting.CreatedAt.IsZero() {
		setting.CreatedAt = now
	}

	setting.UpdatedAt = now

	if setting.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate setting ID: %w", err)
		}

		setting.ID = id.String()
	}

	valueJSON, err := json.Marshal(setting.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal setting value: %w", err)
	}

	query := `
		INSERT INTO settings (id, user_id, category, key, value, description, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ((COALESCE(user_id, '')), category, key) DO UPDATE SET
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			is_public = EXCLUDED.is_public,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		setting.ID,
		setting.UserID,
		setting.Category,
		setting.Key,
		valueJSON,
		setting.Description,
		setting.IsPublic,
		setting.CreatedAt,
		setting.UpdatedAt,
	).Scan(&setting.ID, &setting.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", mapError(err))
	}

	return nil
}

// DeleteSetting removes a row owned by the given user.
func (r *SettingRepository) DeleteSetting(ctx context.Context, userID, category, key string) error {
	query := `DELETE FROM settings WHERE user_id = $1 AND category = $2 AND key = $3`

	result, err := r.db.ExecContext(ctx, query, userID, category, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrSettingNotFound
	}

	return nil
}

// LinkSetting attaches a setting to an automation.
func (r *SettingRepository) LinkSetting(ctx context.Context, automationID, settingID string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate link ID: %w", err)
	}

	query := `
		INSERT INTO automation_settings (id, automation_id, setting_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err = r.db.ExecContext(ctx, query, id.String(), automationID, settingID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link setting: %w", mapError(err))
	}

	return nil
}

// UnlinkSetting detaches a setting from an automation.
func (r *SettingRepository) UnlinkSetting(ctx context.Context, automationID, settingID string) error {
	query := `DELETE FROM automation_settings WHERE automation_id = $1 AND setting_id = $2`

	result, err := r.db.ExecContext(ctx, query, automationID, settingID)
	if err != nil {
		return fmt.Errorf("failed to unlink setting: %w", mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrSettingNotFound
	}

	return nil
}

// AutomationSettings returns the settings linked to one automation, oldest
// link first.
func (r *SettingRepository) AutomationSettings(ctx context.Context, automationID string) ([]*models.Setting, error) {
	query := `
		SELECT
			s.id
		  , s.user_id
		  , s.category
		  , s.key
		  , s.value
		  , s.description
		  , s.is_public
		  , s.created_at
		  , s.updated_at
		FROM settings s
		JOIN automation_settings l ON l.setting_id = s.id
		WHERE l.automation_id = $1
		ORDER BY l.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation settings: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	settings := make([]*models.Setting, 0)

	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}

		settings = append(settings, setting)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automation settings: %w", err)
	}

	return settings, nil
}

func scanSetting(row rowScanner) (*models.Setting, error) {
	var (
		setting   models.Setting
		valueJSON []byte
	)

	err := row.Scan(
		&setting.ID,
		&setting.UserID,
		&setting.Category,
		&setting.Key,
		&valueJSON,
		&setting.Description,
		&setting.IsPublic,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(valueJSON, &setting.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal setting value: %w", err)
	}

	return &setting, nil
}
