package csv

import (
	"errors"
	"fmt"
	"strings"
)

// Table is the parsed form of a CSV blob. Columns keep header order; every
// row carries exactly the keys listed in Columns, missing cells as empty
// strings.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Validation failures are user-facing and reported in the product language.
var (
	// ErrEmptyInput indicates the input text was empty after trimming.
	ErrEmptyInput = errors.New("le contenu du fichier CSV est vide ou invalide")

	// ErrMissingDataLine indicates the input had a header but no data lines.
	ErrMissingDataLine = errors.New("le fichier CSV doit contenir au moins une ligne de données en plus de l'en-tête")

	// ErrEmptyHeader indicates the first line was blank.
	ErrEmptyHeader = errors.New("la ligne d'en-tête est vide")

	// ErrNoColumns indicates tokenizing the header produced no columns.
	ErrNoColumns = errors.New("aucune colonne trouvée dans l'en-tête")

	// ErrDuplicateColumns indicates the header repeats a column name.
	ErrDuplicateColumns = errors.New("les noms de colonnes doivent être uniques")

	// ErrNoValidRows indicates no data line survived parsing.
	ErrNoValidRows = errors.New("aucune ligne de données valide trouvée")

	// ErrTooManyParseErrors indicates more than maxErrorRatio of the lines
	// failed to tokenize.
	ErrTooManyParseErrors = errors.New("trop d'erreurs de parsing")
)

const (
	// maxErrorRatio aborts parsing when the errored-line fraction exceeds it.
	maxErrorRatio = 0.1
	// reportedErrors caps how many per-line errors the aggregate message lists.
	reportedErrors = 3
)

// Parser structures CSV text into a Table. The zero value parses leniently;
// Strict makes the tokenizer reject unterminated quotes, feeding the
// error-ratio policy that is unreachable in lenient mode.
type Parser struct {
	Strict bool
}

// Parse tokenizes and validates text with the default lenient dialect.
func Parse(text string) (*Table, error) {
	return Parser{}.Parse(text)
}

// Parse tokenizes and validates a full CSV blob.
func (p Parser) Parse(text string) (*Table, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	lines := splitLines(trimmed)
	if len(lines) < 2 {
		return nil, ErrMissingDataLine
	}

	columns, err := p.parseHeader(lines[0])
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(lines)-1)
	lineErrors := make([]string, 0)

	for i, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			// Blank lines are skipped outright: they count neither as rows
			// nor toward the error ratio.
			continue
		}

		values, err := p.scan(line)
		if err != nil {
			lineErrors = append(lineErrors, fmt.Sprintf("ligne %d: %v", i+2, err))

			continue
		}

		row := make(map[string]string, len(columns))
		for idx, column := range columns {
			if idx < len(values) {
				row[column] = values[idx]
			} else {
				row[column] = ""
			}
		}

		rows = append(rows, row)
	}

	if len(lineErrors) > 0 && float64(len(lineErrors))/float64(len(lines)) > maxErrorRatio {
		return nil, aggregateErrors(lineErrors)
	}

	if len(rows) == 0 {
		return nil, ErrNoValidRows
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

func (p Parser) parseHeader(headerLine string) ([]string, error) {
	if strings.TrimSpace(headerLine) == "" {
		return nil, ErrEmptyHeader
	}

	columns, err := p.scan(headerLine)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoColumns, err)
	}

	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	unique := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		unique[column] = struct{}{}
	}

	if len(unique) != len(columns) {
		return nil, ErrDuplicateColumns
	}

	return columns, nil
}

func (p Parser) scan(line string) ([]string, error) {
	if p.Strict {
		return ScanLineStrict(line)
	}

	return ScanLine(line), nil
}

func aggregateErrors(lineErrors []string) error {
	sample := lineErrors
	suffix := ""

	if len(sample) > reportedErrors {
		sample = sample[:reportedErrors]
		suffix = "..."
	}

	return fmt.Errorf("%w: %s%s", ErrTooManyParseErrors, strings.Join(sample, ", "), suffix)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines
}
