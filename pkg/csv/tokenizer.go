// Package csv converts raw comma-separated text into validated tabular data.
//
// The dialect is deliberately narrow: comma separator, RFC4180-style double
// quotes with "" as the escape, one record per line. Fields are trimmed of
// surrounding whitespace, matching the data already imported by existing
// installations.
package csv

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is reported by ScanLineStrict when a quoted field is
// still open at end of line.
var ErrUnterminatedQuote = errors.New("guillemet non fermé dans la ligne")

// ScanLine splits one line into fields. It never fails: malformed quoting is
// absorbed and the characters accumulate into the current field, preserving
// the lenient behavior existing imports rely on.
func ScanLine(line string) []string {
	fields, _ := scanLine(line, false)

	return fields
}

// ScanLineStrict splits one line into fields, rejecting unterminated quotes.
func ScanLineStrict(line string) ([]string, error) {
	return scanLine(line, true)
}

func scanLine(line string, strict bool) ([]string, error) {
	fields := make([]string, 0, 8)

	var (
		current  strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); {
		char := line[i]

		switch {
		case char == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				// Escaped quote: emit one literal " and skip both.
				current.WriteByte('"')

				i += 2

				continue
			}

			inQuotes = !inQuotes
			i++
		case char == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()

			i++
		default:
			current.WriteByte(char)
			i++
		}
	}

	if inQuotes && strict {
		return nil, ErrUnterminatedQuote
	}

	fields = append(fields, strings.TrimSpace(current.String()))

	return fields, nil
}
