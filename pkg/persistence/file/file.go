// Package file provides file-based persistence for development and tests.
// Each entity is one JSON document under a subdirectory of the root.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ateliercrm/canal/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root           string
	automationRepo *AutomationRepository
	executionRepo  *ExecutionRepository
	settingRepo    *SettingRepository
	importRepo     *ImportRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is tolerated so database URLs can be passed verbatim.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:           cleanRoot,
		automationRepo: &AutomationRepository{root: cleanRoot},
		executionRepo:  &ExecutionRepository{root: cleanRoot},
		settingRepo:    &SettingRepository{root: cleanRoot},
		importRepo:     &ImportRepository{root: cleanRoot},
	}
}

func (p *Persistence) AutomationRepository() persistence.AutomationRepository {
	return p.automationRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) SettingRepository() persistence.SettingRepository {
	return p.settingRepo
}

func (p *Persistence) ImportRepository() persistence.ImportRepository {
	return p.importRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeDocument atomically persists one entity document.
func writeDocument(root, kind, id string, value any) error {
	dir := filepath.Join(root, kind)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}

	target := filepath.Join(dir, id+".json")
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s document: %w", kind, err)
	}

	err = os.Rename(tmp, target)
	if err != nil {
		return fmt.Errorf("failed to commit %s document: %w", kind, err)
	}

	return nil
}

// readDocument loads one entity document. The boolean is false when the
// document does not exist.
func readDocument(root, kind, id string, value any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(root, kind, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s document: %w", kind, err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s document: %w", kind, err)
	}

	return true, nil
}

// listDocumentIDs returns the IDs of all documents of one kind.
func listDocumentIDs(root, kind string) ([]string, error) {
	dir := os.DirFS(filepath.Join(root, kind))

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", kind, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func removeDocument(root, kind, id string) error {
	err := os.Remove(filepath.Join(root, kind, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s document: %w", kind, err)
	}

	return nil
}
