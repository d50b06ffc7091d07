package models

import "time"

// Import is one persisted CSV import: the parsed columns plus the rows that
// passed validation. Name is unique per owner.
type Import struct {
	ID       string   `json:"id"`
	Owner    string   `json:"owner"    validate:"required"`
	Name     string   `json:"name"     validate:"required,min=1"`
	Filename string   `json:"filename"`
	Columns  []string `json:"columns"`
	// Rows maps column name to cell value; every row carries exactly the
	// keys listed in Columns, missing cells as empty strings.
	Rows      []map[string]string `json:"data"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// RowCount returns the number of persisted rows.
func (i *Import) RowCount() int {
	return len(i.Rows)
}
