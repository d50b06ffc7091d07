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

const automationKind = "automations"

// AutomationRepository stores automation documents on disk.
type AutomationRepository struct {
	root string
	mu   sync.RWMutex
}

func (r *AutomationRepository) Automations(ctx context.Context, owner string) ([]*models.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listDocumentIDs(r.root, automationKind)
	if err != nil {
		return nil, err
	}

	automations := make([]*models.Automation, 0, len(ids))

	for _, id := range ids {
		var automation models.Automation

		found, err := readDocument(r.root, automationKind, id, &automation)
		if err != nil {
			return nil, err
		}

		if !found || automation.Owner != owner {
			continue
		}

		automations = append(automations, &automation)
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.After(automations[j].CreatedAt)
	})

	return automations, nil
}

// ScheduledAutomations returns every active automation with a schedule,
// across owners. The scheduler is the only caller with that view.
func (r *AutomationRepository) ScheduledAutomations(ctx context.Context) ([]*models.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listDocumentIDs(r.root, automationKind)
	if err != nil {
		return nil, err
	}

	automations := make([]*models.Automation, 0, len(ids))

	for _, id := range ids {
		var automation models.Automation

		found, err := readDocument(r.root, automationKind, id, &automation)
		if err != nil {
			return nil, err
		}

		if !found || !automation.IsActive || automation.Schedule == "" {
			continue
		}

		automations = append(automations, &automation)
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.After(automations[j].CreatedAt)
	})

	return automations, nil
}

func (r *AutomationRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var automation models.Automation

	found, err := readDocument(r.root, automationKind, id, &automation)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrAutomationNotFound
	}

	return &automation, nil
}

func (r *AutomationRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	return writeDocument(r.root, automationKind, automation.ID, automation)
}

func (r *AutomationRepository) DeleteAutomation(ctx context.Context, owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var automation models.Automation

	found, err := readDocument(r.root, automationKind, id, &automation)
	if err != nil {
		return err
	}

	if !found {
		return persistence.ErrAutomationNotFound
	}

	if automation.Owner != owner {
		return persistence.ErrPermissionDenied
	}

	return removeDocument(r.root, automationKind, id)
}
