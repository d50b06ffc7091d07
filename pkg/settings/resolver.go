// Package settings resolves scoped configuration rows into one flattened
// "{category}.{key}" mapping for a single actor.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
)

// Resolver maintains the flattened settings view for one user. Overlapping
// rows resolve deterministically: a row owned by the user beats a public
// row, which beats a global row, and ties go to the most recently updated
// row.
type Resolver struct {
	repo   persistence.SettingRepository
	userID string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]resolvedValue
}

type resolvedValue struct {
	value     models.SettingValue
	weight    int
	updatedAt time.Time
}

// NewResolver creates a resolver for the given user. Call Refresh before
// the first Get.
func NewResolver(repo persistence.SettingRepository, userID string, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		userID: userID,
		logger: logger.With("module", "settings"),
		values: make(map[string]resolvedValue),
	}
}

// Refresh re-pulls all visible rows and rebuilds the mapping from scratch.
func (r *Resolver) Refresh(ctx context.Context) error {
	rows, err := r.repo.VisibleSettings(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	values := make(map[string]resolvedValue, len(rows))

	for _, row := range rows {
		candidate := resolvedValue{
			value:     row.Value,
			weight:    r.weight(row),
			updatedAt: row.UpdatedAt,
		}

		current, ok := values[row.FlatKey()]
		if !ok || candidate.wins(current) {
			values[row.FlatKey()] = candidate
		}
	}

	r.mu.Lock()
	r.values = values
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "settings refreshed", "count", len(values))

	return nil
}

// Get returns the resolved value for category and key, or the supplied
// default when no row is present.
func (r *Resolver) Get(category, key string, defaultValue models.SettingValue) models.SettingValue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved, ok := r.values[category+"."+key]
	if !ok {
		return defaultValue
	}

	return resolved.value
}

// Set upserts a row scoped to the resolver's user and updates the mapping
// optimistically.
func (r *Resolver) Set(ctx context.Context, category, key string, value models.SettingValue, description string) error {
	userID := r.userID

	setting := &models.Setting{
		UserID:      &userID,
		Category:    category,
		Key:         key,
		Value:       value,
		Description: description,
	}

	err := r.repo.UpsertSetting(ctx, setting)
	if err != nil {
		return fmt.Errorf("failed to save setting %s.%s: %w", category, key, err)
	}

	r.mu.Lock()
	r.values[setting.FlatKey()] = resolvedValue{
		value:     setting.Value,
		weight:    weightUser,
		updatedAt: setting.UpdatedAt,
	}
	r.mu.Unlock()

	return nil
}

// Delete removes the user-scoped row and the in-memory entry. A global or
// public row under the same key becomes visible again on the next Refresh.
func (r *Resolver) Delete(ctx context.Context, category, key string) error {
	err := r.repo.DeleteSetting(ctx, r.userID, category, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s.%s: %w", category, key, err)
	}

	r.mu.Lock()
	delete(r.values, category+"."+key)
	r.mu.Unlock()

	return nil
}

// Category returns the resolved sub-mapping for one category, keyed by the
// bare key with the category prefix stripped.
func (r *Resolver) Category(category string) map[string]models.SettingValue {
	prefix := category + "."

	r.mu.RLock()
	defer r.mu.RUnlock()

	projection := make(map[string]models.SettingValue)

	for flatKey, resolved := range r.values {
		if strings.HasPrefix(flatKey, prefix) {
			projection[strings.TrimPrefix(flatKey, prefix)] = resolved.value
		}
	}

	return projection
}

const (
	weightGlobal = 0
	weightPublic = 1
	weightUser   = 2
)

func (r *Resolver) weight(row *models.Setting) int {
	switch {
	case row.OwnedBy(r.userID):
		return weightUser
	case row.UserID != nil && row.IsPublic:
		return weightPublic
	default:
		return weightGlobal
	}
}

func (v resolvedValue) wins(other resolvedValue) bool {
	if v.weight != other.weight {
		return v.weight > other.weight
	}

	return v.updatedAt.After(other.updatedAt)
}
