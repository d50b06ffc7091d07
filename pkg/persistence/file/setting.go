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

const (
	settingKind     = "settings"
	settingLinkKind = "automation_settings"
)

// SettingRepository stores setting documents and automation links on disk.
type SettingRepository struct {
	root string
	mu   sync.RWMutex
}

func (r *SettingRepository) VisibleSettings(ctx context.Context, userID string) ([]*models.Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings, err := r.allSettings()
	if err != nil {
		return nil, err
	}

	visible := make([]*models.Setting, 0, len(settings))

	for _, setting := range settings {
		if setting.UserID == nil || setting.IsPublic || setting.OwnedBy(userID) {
			visible = append(visible, setting)
		}
	}

	sort.Slice(visible, func(i, j int) bool {
		return visible[i].CreatedAt.Before(visible[j].CreatedAt)
	})

	return visible, nil
}

func (r *SettingRepository) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	settings, err := r.allSettings()
	if err != nil {
		return err
	}

	// Uniqueness on (user scope, category, key): reuse the existing row's
	// identity when present.
	for _, existing := range settings {
		if existing.Category != setting.Category || existing.Key != setting.Key {
			continue
		}

		if !sameScope(existing.UserID, setting.UserID) {
			continue
		}

		setting.ID = existing.ID
		setting.CreatedAt = existing.CreatedAt

		break
	}

	if setting.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate setting ID: %w", err)
		}

		setting.ID = id.String()
		setting.CreatedAt = now
	}

	setting.UpdatedAt = now

	return writeDocument(r.root, settingKind, setting.ID, setting)
}

func (r *SettingRepository) DeleteSetting(ctx context.Context, userID, category, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	settings, err := r.allSettings()
	if err != nil {
		return err
	}

	for _, setting := range settings {
		if setting.Category == category && setting.Key == key && setting.OwnedBy(userID) {
			return removeDocument(r.root, settingKind, setting.ID)
		}
	}

	return persistence.ErrSettingNotFound
}

func (r *SettingRepository) LinkSetting(ctx context.Context, automationID, settingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate link ID: %w", err)
	}

	links, err := r.allLinks()
	if err != nil {
		return err
	}

	for _, link := range links {
		if link.AutomationID == automationID && link.SettingID == settingID {
			return persistence.ErrDuplicateName
		}
	}

	link := models.AutomationSetting{
		ID:           id.String(),
		AutomationID: automationID,
		SettingID:    settingID,
		CreatedAt:    time.Now().UTC(),
	}

	return writeDocument(r.root, settingLinkKind, link.ID, link)
}

func (r *SettingRepository) UnlinkSetting(ctx context.Context, automationID, settingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	links, err := r.allLinks()
	if err != nil {
		return err
	}

	for _, link := range links {
		if link.AutomationID == automationID && link.SettingID == settingID {
			return removeDocument(r.root, settingLinkKind, link.ID)
		}
	}

	return persistence.ErrSettingNotFound
}

func (r *SettingRepository) AutomationSettings(ctx context.Context, automationID string) ([]*models.Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links, err := r.allLinks()
	if err != nil {
		return nil, err
	}

	settings := make([]*models.Setting, 0)

	for _, link := range links {
		if link.AutomationID != automationID {
			continue
		}

		var setting models.Setting

		found, err := readDocument(r.root, settingKind, link.SettingID, &setting)
		if err != nil {
			return nil, err
		}

		if found {
			settings = append(settings, &setting)
		}
	}

	sort.Slice(settings, func(i, j int) bool {
		return settings[i].CreatedAt.Before(settings[j].CreatedAt)
	})

	return settings, nil
}

func (r *SettingRepository) allSettings() ([]*models.Setting, error) {
	ids, err := listDocumentIDs(r.root, settingKind)
	if err != nil {
		return nil, err
	}

	settings := make([]*models.Setting, 0, len(ids))

	for _, id := range ids {
		var setting models.Setting

		found, err := readDocument(r.root, settingKind, id, &setting)
		if err != nil {
			return nil, err
		}

		if found {
			settings = append(settings, &setting)
		}
	}

	return settings, nil
}

func (r *SettingRepository) allLinks() ([]*models.AutomationSetting, error) {
	ids, err := listDocumentIDs(r.root, settingLinkKind)
	if err != nil {
		return nil, err
	}

	links := make([]*models.AutomationSetting, 0, len(ids))

	for _, id := range ids {
		var link models.AutomationSetting

		found, err := readDocument(r.root, settingLinkKind, id, &link)
		if err != nil {
			return nil, err
		}

		if found {
			links = append(links, &link)
		}
	}

	return links, nil
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}
