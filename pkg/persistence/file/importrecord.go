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

const importKind = "imports"

// ImportRepository stores import documents on disk.
type ImportRepository struct {
	root string
	mu   sync.RWMutex
}

func (r *ImportRepository) SaveImport(ctx context.Context, record *models.Import) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.ownerImports(record.Owner)
	if err != nil {
		return err
	}

	// Import names are unique per owner, like the database constraint.
	for _, other := range existing {
		if other.Name == record.Name && other.ID != record.ID {
			return persistence.ErrDuplicateName
		}
	}

	now := time.Now().UTC()

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate import ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	return writeDocument(r.root, importKind, record.ID, record)
}

func (r *ImportRepository) Imports(ctx context.Context, owner string) ([]*models.Import, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	imports, err := r.ownerImports(owner)
	if err != nil {
		return nil, err
	}

	sort.Slice(imports, func(i, j int) bool {
		return imports[i].CreatedAt.After(imports[j].CreatedAt)
	})

	return imports, nil
}

func (r *ImportRepository) ImportByID(ctx context.Context, owner, id string) (*models.Import, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var record models.Import

	found, err := readDocument(r.root, importKind, id, &record)
	if err != nil {
		return nil, err
	}

	if !found || record.Owner != owner {
		return nil, persistence.ErrImportNotFound
	}

	return &record, nil
}

func (r *ImportRepository) DeleteImport(ctx context.Context, owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var record models.Import

	found, err := readDocument(r.root, importKind, id, &record)
	if err != nil {
		return err
	}

	if !found {
		return persistence.ErrImportNotFound
	}

	if record.Owner != owner {
		return persistence.ErrPermissionDenied
	}

	return removeDocument(r.root, importKind, id)
}

func (r *ImportRepository) CountImports(ctx context.Context, owner string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	imports, err := r.ownerImports(owner)
	if err != nil {
		return 0, err
	}

	return int64(len(imports)), nil
}

func (r *ImportRepository) ownerImports(owner string) ([]*models.Import, error) {
	ids, err := listDocumentIDs(r.root, importKind)
	if err != nil {
		return nil, err
	}

	imports := make([]*models.Import, 0, len(ids))

	for _, id := range ids {
		var record models.Import

		found, err := readDocument(r.root, importKind, id, &record)
		if err != nil {
			return nil, err
		}

		if found && record.Owner == owner {
			imports = append(imports, &record)
		}
	}

	return imports, nil
}
