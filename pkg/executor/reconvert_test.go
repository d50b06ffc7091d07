package executor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/ateliercrm/canal/pkg/csv"
	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExecution(t *testing.T, p persistence.Persistence, owner string, data any) *models.Execution {
	t.Helper()

	ctx := context.Background()

	automation := &models.Automation{Owner: owner, Name: "source"}
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))

	execution := &models.Execution{
		AutomationID: automation.ID,
		Status:       models.ExecutionStatusSuccess,
		Data:         data,
	}
	require.NoError(t, p.ExecutionRepository().CreateExecution(ctx, execution))

	return execution
}

func TestReconvert_ArrayOfObjectsBecomesImport(t *testing.T) {
	t.Parallel()

	exec, p, _ := newTestExecutor(t)
	ctx := context.Background()

	execution := seedExecution(t, p, "user-1", []any{
		map[string]any{"nom": "Durand", "ville": "Lyon"},
		map[string]any{"nom": "Martin", "ville": "Nantes"},
	})

	record, err := exec.Reconvert(ctx, "user-1", execution.ID)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(record.Name, "_converter"))
	assert.Equal(t, record.Name, record.Filename)
	assert.Equal(t, []string{"nom", "ville"}, record.Columns)
	require.Equal(t, 2, record.RowCount())
	assert.Equal(t, "Durand", record.Rows[0]["nom"])
	assert.Equal(t, "Nantes", record.Rows[1]["ville"])

	stored, err := p.ImportRepository().ImportByID(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Name, stored.Name)
}

func TestReconvert_NonTabularData(t *testing.T) {
	t.Parallel()

	exec, p, _ := newTestExecutor(t)
	ctx := context.Background()

	execution := seedExecution(t, p, "user-1", map[string]any{"message": "ack"})

	_, err := exec.Reconvert(ctx, "user-1", execution.ID)
	assert.ErrorIs(t, err, csv.ErrNotTabular)

	count, err := p.ImportRepository().CountImports(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReconvert_UnknownExecution(t *testing.T) {
	t.Parallel()

	exec, _, _ := newTestExecutor(t)

	_, err := exec.Reconvert(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestReconvert_BlankRowsFiltered(t *testing.T) {
	t.Parallel()

	exec, p, _ := newTestExecutor(t)
	ctx := context.Background()

	execution := seedExecution(t, p, "user-1", []any{
		map[string]any{"nom": "Durand", "ville": "Lyon"},
		map[string]any{"nom": "", "ville": ""},
		map[string]any{"nom": "Martin", "ville": "Nantes"},
		map[string]any{"nom": "", "ville": ""},
	})

	record, err := exec.Reconvert(ctx, "user-1", execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, record.RowCount())
}
