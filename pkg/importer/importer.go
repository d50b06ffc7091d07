// Package importer validates uploaded CSV files and persists them as named
// imports. Validation messages are user-facing and kept in French, matching
// the product surface.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/ateliercrm/canal/pkg/csv"
	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
)

const (
	// MaxFileSize is the upload ceiling in bytes.
	MaxFileSize = 50 * 1024 * 1024
	// MaxRows is the row ceiling for one import.
	MaxRows = 10000
	// PreviewRows is how many rows the non-committing preview returns.
	PreviewRows = 5

	// minValidRowRatio is the share of non-blank rows an import must keep.
	minValidRowRatio = 0.5

	csvMediaType = "text/csv"
)

var (
	ErrEmptyFile    = errors.New("le fichier sélectionné est vide")
	ErrFileTooLarge = errors.New("le fichier est trop volumineux (maximum 50MB)")
	ErrNotCSV       = errors.New("veuillez sélectionner un fichier CSV valide")
	ErrBadEncoding  = errors.New("le fichier semble avoir un problème d'encodage, assurez-vous qu'il est en UTF-8")
	ErrTooManyRows  = errors.New("le fichier contient trop de lignes (maximum 10 000), divisez-le en plusieurs fichiers plus petits")
	ErrNoValidData  = errors.New("aucune donnée valide trouvée dans le fichier")
	ErrNameRequired = errors.New("veuillez renseigner un nom d'import")
	ErrNameTaken    = errors.New("un import avec ce nom existe déjà, choisissez un autre nom")
	ErrNotAllowed   = errors.New("vous n'avez pas les permissions pour effectuer cet import")
)

// RatioError reports an import rejected because too many rows were blank or
// invalid.
type RatioError struct {
	Invalid int
	Total   int
}

func (e *RatioError) Error() string {
	return fmt.Sprintf("trop de lignes vides ou invalides (%d sur %d), vérifiez le format de votre fichier", e.Invalid, e.Total)
}

// Importer validates CSV uploads and stores the surviving rows.
type Importer struct {
	imports persistence.ImportRepository
	logger  *slog.Logger
	parser  csv.Parser
}

// New creates an importer backed by the given repository.
func New(imports persistence.ImportRepository, logger *slog.Logger) *Importer {
	return &Importer{
		imports: imports,
		logger:  logger.With("module", "importer"),
		parser:  csv.Parser{},
	}
}

// Preview is the result of the non-committing upload path.
type Preview struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	// TotalRows is the full parsed row count, before the preview cut.
	TotalRows int `json:"total_rows"`
}

// Preview validates the file and returns its header plus the first rows
// without persisting anything. Full validation still runs at commit time.
func (i *Importer) Preview(filename, contentType string, data []byte) (*Preview, error) {
	table, err := i.validate(filename, contentType, data)
	if err != nil {
		return nil, err
	}

	rows := table.Rows
	if len(rows) > PreviewRows {
		rows = rows[:PreviewRows]
	}

	return &Preview{
		Columns:   table.Columns,
		Rows:      rows,
		TotalRows: len(table.Rows),
	}, nil
}

// Import validates the file and persists the valid rows under the given
// name. Names are unique per owner.
func (i *Importer) Import(ctx context.Context, owner, name, filename, contentType string, data []byte) (*models.Import, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	table, err := i.validate(filename, contentType, data)
	if err != nil {
		return nil, err
	}

	record := &models.Import{
		Owner:    owner,
		Name:     name,
		Filename: filename,
		Columns:  table.Columns,
		Rows:     table.Rows,
	}

	err = i.imports.SaveImport(ctx, record)
	if err != nil {
		switch {
		case persistence.IsDuplicateName(err):
			return nil, ErrNameTaken
		case persistence.IsPermissionDenied(err):
			return nil, ErrNotAllowed
		default:
			return nil, fmt.Errorf("failed to save import: %w", err)
		}
	}

	i.logger.InfoContext(ctx, "import saved",
		"owner", owner,
		"name", name,
		"rows", record.RowCount(),
	)

	return record, nil
}

// validate runs the file-level checks, parses, and applies the row policy.
// The returned table carries only the valid rows.
func (i *Importer) validate(filename, contentType string, data []byte) (*csv.Table, error) {
	err := checkFile(filename, contentType, data)
	if err != nil {
		return nil, err
	}

	table, err := i.parser.Parse(string(data))
	if err != nil {
		return nil, err
	}

	validRows, err := ValidateRows(table.Rows)
	if err != nil {
		return nil, err
	}

	table.Rows = validRows

	return table, nil
}

// ValidateRows applies the row-count and blank-row-ratio policy shared by
// uploads and execution-result reconversion. It returns the rows that carry
// at least one non-empty cell.
func ValidateRows(rows []map[string]string) ([]map[string]string, error) {
	if len(rows) > MaxRows {
		return nil, ErrTooManyRows
	}

	validRows := make([]map[string]string, 0, len(rows))

	for _, row := range rows {
		if hasData(row) {
			validRows = append(validRows, row)
		}
	}

	if len(validRows) == 0 {
		return nil, ErrNoValidData
	}

	total := len(rows)
	if float64(len(validRows)) < float64(total)*minValidRowRatio {
		return nil, &RatioError{Invalid: total - len(validRows), Total: total}
	}

	return validRows, nil
}

func checkFile(filename, contentType string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyFile
	}

	if len(data) > MaxFileSize {
		return ErrFileTooLarge
	}

	if !isCSV(filename, contentType) {
		return ErrNotCSV
	}

	if !utf8.Valid(data) || bytes.ContainsRune(data, utf8.RuneError) {
		return ErrBadEncoding
	}

	return nil
}

func isCSV(filename, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == csvMediaType
}

func hasData(row map[string]string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}

	return false
}
