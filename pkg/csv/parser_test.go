package csv_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ateliercrm/canal/pkg/csv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WellFormed(t *testing.T) {
	t.Parallel()

	table, err := csv.Parse("name,email,city\nJean,jean@example.com,Lyon\nMarie,marie@example.com,Paris\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "email", "city"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, map[string]string{"name": "Jean", "email": "jean@example.com", "city": "Lyon"}, table.Rows[0])
	assert.Equal(t, map[string]string{"name": "Marie", "email": "marie@example.com", "city": "Paris"}, table.Rows[1])
}

func TestParse_EveryRowHasHeaderKeys(t *testing.T) {
	t.Parallel()

	// Short rows are zero-padded, never rejected.
	table, err := csv.Parse("a,b,c\n1,2\n1\n1,2,3,4")
	require.NoError(t, err)

	for _, row := range table.Rows {
		require.Len(t, row, 3)

		for _, column := range table.Columns {
			_, exists := row[column]
			assert.True(t, exists, "row missing column %q", column)
		}
	}

	assert.Equal(t, "", table.Rows[0]["c"])
	assert.Equal(t, "", table.Rows[1]["b"])
	// Extra fields beyond the header are dropped.
	assert.Equal(t, "3", table.Rows[2]["c"])
}

func TestParse_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty input", input: "", wantErr: csv.ErrEmptyInput},
		{name: "whitespace only", input: "   \n\t  ", wantErr: csv.ErrEmptyInput},
		{name: "header only", input: "a,b,c", wantErr: csv.ErrMissingDataLine},
		{name: "duplicate columns", input: "a,b,a\n1,2,3", wantErr: csv.ErrDuplicateColumns},
		{name: "only blank data lines", input: "a,b\n\n   \n", wantErr: csv.ErrMissingDataLine},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			table, err := csv.Parse(testCase.input)
			assert.Nil(t, table)
			assert.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestParse_NoValidRows(t *testing.T) {
	t.Parallel()

	// Blank lines between header and data are stripped by the outer trim,
	// so force the no-valid-rows path with interior blanks only.
	table, err := csv.Parse("a,b\n1,2\n\n3,4")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestParse_BlankLinesSkipped(t *testing.T) {
	t.Parallel()

	table, err := csv.Parse("a,b\n1,2\n\n   \n3,4\n\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "3", table.Rows[1]["a"])
}

func TestParse_QuotedFieldsRoundTrip(t *testing.T) {
	t.Parallel()

	table, err := csv.Parse("name,notes\n\"Dupont, Jean\",\"il a dit \"\"bonjour\"\"\"")
	require.NoError(t, err)

	assert.Equal(t, "Dupont, Jean", table.Rows[0]["name"])
	assert.Equal(t, `il a dit "bonjour"`, table.Rows[0]["notes"])
}

func TestParse_CRLFLines(t *testing.T) {
	t.Parallel()

	table, err := csv.Parse("a,b\r\n1,2\r\n3,4\r\n")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, "4", table.Rows[1]["b"])
}

func TestParse_StrictErrorRatio(t *testing.T) {
	t.Parallel()

	// 1 bad line out of 4 total lines is 25% > 10%: aborted with the
	// aggregated message.
	input := "a,b\n1,2\n\"bad,3\n4,5"

	_, err := csv.Parser{Strict: true}.Parse(input)
	require.ErrorIs(t, err, csv.ErrTooManyParseErrors)
	assert.Contains(t, err.Error(), "ligne 3")

	// The same input parses in lenient mode.
	table, err := csv.Parse(input)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
}

func TestParse_StrictErrorRatioTolerated(t *testing.T) {
	t.Parallel()

	// 1 bad line in 30 total stays under the 10% threshold; the bad line is
	// dropped and the rest parse.
	var builder strings.Builder

	builder.WriteString("a,b\n")

	for i := 0; i < 28; i++ {
		fmt.Fprintf(&builder, "%d,%d\n", i, i)
	}

	builder.WriteString("\"unterminated,9\n")

	table, err := csv.Parser{Strict: true}.Parse(builder.String())
	require.NoError(t, err)
	assert.Len(t, table.Rows, 28)
}

func TestParse_StrictAggregateListsFirstThree(t *testing.T) {
	t.Parallel()

	input := "a,b\n\"x\n\"y\n\"z\n\"w"

	_, err := csv.Parser{Strict: true}.Parse(input)
	require.ErrorIs(t, err, csv.ErrTooManyParseErrors)
	assert.Contains(t, err.Error(), "...")
	assert.NotContains(t, err.Error(), "ligne 5")
}
