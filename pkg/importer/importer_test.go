package importer_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/ateliercrm/canal/pkg/importer"
	"github.com/ateliercrm/canal/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImporter(t *testing.T) (*importer.Importer, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return importer.New(p.ImportRepository(), logger), p
}

func TestImporter_FileChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		expected    error
	}{
		{
			name:     "empty file",
			filename: "contacts.csv",
			data:     nil,
			expected: importer.ErrEmptyFile,
		},
		{
			name:        "not a csv",
			filename:    "contacts.xlsx",
			contentType: "application/vnd.ms-excel",
			data:        []byte("name\nAlice"),
			expected:    importer.ErrNotCSV,
		},
		{
			name:        "csv media type without extension",
			filename:    "upload",
			contentType: "text/csv; charset=utf-8",
			data:        []byte("name\nAlice"),
			expected:    nil,
		},
		{
			name:     "replacement character means broken encoding",
			filename: "contacts.csv",
			data:     []byte("name\nAl�ce"),
			expected: importer.ErrBadEncoding,
		},
		{
			name:     "invalid utf-8 bytes",
			filename: "contacts.csv",
			data:     []byte{'n', 'a', 'm', 'e', '\n', 0xff, 0xfe},
			expected: importer.ErrBadEncoding,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			imp, _ := newTestImporter(t)

			_, err := imp.Preview(testCase.filename, testCase.contentType, testCase.data)
			if testCase.expected != nil {
				assert.ErrorIs(t, err, testCase.expected)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImporter_FileTooLarge(t *testing.T) {
	t.Parallel()

	imp, _ := newTestImporter(t)

	data := make([]byte, importer.MaxFileSize+1)
	for i := range data {
		data[i] = 'a'
	}

	_, err := imp.Preview("big.csv", "", data)
	assert.ErrorIs(t, err, importer.ErrFileTooLarge)
}

func TestImporter_PreviewFirstFiveRows(t *testing.T) {
	t.Parallel()

	imp, _ := newTestImporter(t)

	var builder strings.Builder

	builder.WriteString("name,email\n")

	for i := range 8 {
		fmt.Fprintf(&builder, "person%d,p%d@example.com\n", i, i)
	}

	preview, err := imp.Preview("contacts.csv", "", []byte(builder.String()))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "email"}, preview.Columns)
	assert.Len(t, preview.Rows, importer.PreviewRows)
	assert.Equal(t, 8, preview.TotalRows)
	assert.Equal(t, "person0", preview.Rows[0]["name"])
}

func TestImporter_ImportPersistsValidRowsOnly(t *testing.T) {
	t.Parallel()

	imp, p := newTestImporter(t)
	ctx := context.Background()

	// Header plus three data rows; one row is all-blank cells after
	// zero-padding and must be dropped.
	data := []byte("name,email\nAlice,alice@example.com\n,\nBob,bob@example.com\n")

	record, err := imp.Import(ctx, "user-1", "contacts", "contacts.csv", "text/csv", data)
	require.NoError(t, err)
	assert.Equal(t, 2, record.RowCount())

	stored, err := p.ImportRepository().ImportByID(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "contacts.csv", stored.Filename)
	assert.Equal(t, 2, stored.RowCount())
}

func TestImporter_ImportNameRequired(t *testing.T) {
	t.Parallel()

	imp, _ := newTestImporter(t)

	_, err := imp.Import(context.Background(), "user-1", "   ", "c.csv", "", []byte("name\nAlice"))
	assert.ErrorIs(t, err, importer.ErrNameRequired)
}

func TestImporter_ImportDuplicateName(t *testing.T) {
	t.Parallel()

	imp, _ := newTestImporter(t)
	ctx := context.Background()

	data := []byte("name\nAlice\n")

	_, err := imp.Import(ctx, "user-1", "contacts", "c.csv", "", data)
	require.NoError(t, err)

	_, err = imp.Import(ctx, "user-1", "contacts", "c.csv", "", data)
	assert.ErrorIs(t, err, importer.ErrNameTaken)
}

func TestValidateRows_TooManyRows(t *testing.T) {
	t.Parallel()

	rows := make([]map[string]string, importer.MaxRows+1)
	for i := range rows {
		rows[i] = map[string]string{"name": "x"}
	}

	_, err := importer.ValidateRows(rows)
	assert.ErrorIs(t, err, importer.ErrTooManyRows)
}

func TestValidateRows_RatioMessageReportsCounts(t *testing.T) {
	t.Parallel()

	// 40 valid rows out of 100 is under the 50% floor.
	rows := make([]map[string]string, 0, 100)

	for range 40 {
		rows = append(rows, map[string]string{"name": "ok"})
	}

	for range 60 {
		rows = append(rows, map[string]string{"name": "  "})
	}

	_, err := importer.ValidateRows(rows)
	require.Error(t, err)

	var ratioErr *importer.RatioError

	require.ErrorAs(t, err, &ratioErr)
	assert.Equal(t, 60, ratioErr.Invalid)
	assert.Equal(t, 100, ratioErr.Total)
	assert.Contains(t, err.Error(), "60 sur 100")
}

func TestValidateRows_ExactlyHalfIsAccepted(t *testing.T) {
	t.Parallel()

	rows := []map[string]string{
		{"name": "ok"},
		{"name": ""},
	}

	validRows, err := importer.ValidateRows(rows)
	require.NoError(t, err)
	assert.Len(t, validRows, 1)
}

func TestValidateRows_NoValidRows(t *testing.T) {
	t.Parallel()

	_, err := importer.ValidateRows([]map[string]string{{"name": " "}})
	assert.ErrorIs(t, err, importer.ErrNoValidData)
}
