package csv

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotTabular indicates a JSON payload that cannot be laid out as rows:
// anything other than an array of objects.
var ErrNotTabular = errors.New("les données ne sont pas tabulaires (tableau d'objets attendu)")

// Marshal renders an array-of-objects JSON value as CSV text: a header built
// from the union of keys in first-seen order, then one line per object.
// Nested values are serialized as JSON. This is the reconversion path for
// execution payloads, so unknown shapes fail rather than guess.
func Marshal(value any) (string, error) {
	items, ok := value.([]any)
	if !ok {
		if typed, isTyped := value.([]map[string]any); isTyped {
			items = make([]any, len(typed))
			for i, item := range typed {
				items[i] = item
			}
		} else {
			return "", ErrNotTabular
		}
	}

	objects := make([]map[string]any, 0, len(items))

	for _, item := range items {
		object, isObject := item.(map[string]any)
		if !isObject {
			return "", ErrNotTabular
		}

		objects = append(objects, object)
	}

	columns := collectColumns(objects)
	if len(columns) == 0 {
		return "", ErrNotTabular
	}

	var out strings.Builder

	writeRecord(&out, columns)

	for _, object := range objects {
		record := make([]string, len(columns))

		for i, column := range columns {
			cell, err := formatCell(object[column])
			if err != nil {
				return "", err
			}

			record[i] = cell
		}

		writeRecord(&out, record)
	}

	return out.String(), nil
}

// collectColumns returns the union of keys across all objects, ordered by
// first appearance. Within one object, keys follow their JSON document order
// as far as Go exposes it; ties are broken by sorting per object to keep the
// output deterministic.
func collectColumns(objects []map[string]any) []string {
	seen := make(map[string]struct{})
	columns := make([]string, 0)

	for _, object := range objects {
		keys := make([]string, 0, len(object))
		for key := range object {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			if _, exists := seen[key]; exists {
				continue
			}

			seen[key] = struct{}{}

			columns = append(columns, key)
		}
	}

	return columns
}

func formatCell(value any) (string, error) {
	switch cell := value.(type) {
	case nil:
		return "", nil
	case string:
		return cell, nil
	case float64:
		return trimFloat(cell), nil
	case bool:
		return fmt.Sprintf("%t", cell), nil
	default:
		encoded, err := json.Marshal(cell)
		if err != nil {
			return "", fmt.Errorf("failed to encode cell value: %w", err)
		}

		return string(encoded), nil
	}
}

func writeRecord(out *strings.Builder, record []string) {
	for i, field := range record {
		if i > 0 {
			out.WriteByte(',')
		}

		out.WriteString(quoteField(field))
	}

	out.WriteByte('\n')
}

// quoteField wraps a field in double quotes when it contains a separator,
// quote, or newline, doubling any embedded quotes.
func quoteField(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}

	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}

	return fmt.Sprintf("%g", f)
}
