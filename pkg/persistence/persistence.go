// Package persistence provides the data storage abstraction for automations,
// executions, settings and imports.
package persistence

import (
	"context"

	"github.com/ateliercrm/canal/pkg/models"
)

// AutomationRepository stores automation definitions, scoped by owner.
type AutomationRepository interface {
	Automations(ctx context.Context, owner string) ([]*models.Automation, error)
	// ScheduledAutomations returns every active automation with a non-empty
	// schedule, across owners.
	ScheduledAutomations(ctx context.Context) ([]*models.Automation, error)
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	DeleteAutomation(ctx context.Context, owner, id string) error
}

// ExecutionRepository stores execution records. Create inserts the running
// record; Update commits the terminal (or corrective) state by ID.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	UpdateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	Executions(ctx context.Context, owner string, limit int) ([]*models.Execution, error)
	CountExecutionsByStatus(ctx context.Context, owner string) (map[models.ExecutionStatus]int64, error)
}

// SettingRepository stores settings rows and their automation links.
type SettingRepository interface {
	// VisibleSettings returns global rows, rows owned by userID, and public
	// rows, which is everything the settings resolver may consider.
	VisibleSettings(ctx context.Context, userID string) ([]*models.Setting, error)
	UpsertSetting(ctx context.Context, setting *models.Setting) error
	DeleteSetting(ctx context.Context, userID, category, key string) error

	LinkSetting(ctx context.Context, automationID, settingID string) error
	UnlinkSetting(ctx context.Context, automationID, settingID string) error
	// AutomationSettings returns the settings linked to one automation.
	AutomationSettings(ctx context.Context, automationID string) ([]*models.Setting, error)
}

// ImportRepository stores committed CSV imports.
type ImportRepository interface {
	SaveImport(ctx context.Context, record *models.Import) error
	Imports(ctx context.Context, owner string) ([]*models.Import, error)
	ImportByID(ctx context.Context, owner, id string) (*models.Import, error)
	DeleteImport(ctx context.Context, owner, id string) error
	CountImports(ctx context.Context, owner string) (int64, error)
}

// Persistence bundles the repositories behind one connection-owning facade.
type Persistence interface {
	AutomationRepository() AutomationRepository
	ExecutionRepository() ExecutionRepository
	SettingRepository() SettingRepository
	ImportRepository() ImportRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
