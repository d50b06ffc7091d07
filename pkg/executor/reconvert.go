package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ateliercrm/canal/pkg/csv"
	"github.com/ateliercrm/canal/pkg/importer"
	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/otelhelper"
	"github.com/ateliercrm/canal/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Reconvert turns a stored execution's response payload back into a tabular
// import. The payload must be an array of objects; the produced CSV goes
// through the ordinary parse and row validation before it is persisted under
// a timestamp-derived name.
func (e *Executor) Reconvert(ctx context.Context, owner, executionID string) (*models.Import, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.reconvert",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.OwnerKey, owner),
	)
	defer span.End()

	execution, err := e.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load execution: %w", err)
	}

	text, err := csv.Marshal(execution.Data)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to convert execution data: %w", err)
	}

	table, err := csv.Parse(text)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	validRows, err := importer.ValidateRows(table.Rows)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	name := strconv.FormatInt(time.Now().UnixMilli(), 10) + "_converter"

	record := &models.Import{
		Owner:    owner,
		Name:     name,
		Filename: name,
		Columns:  table.Columns,
		Rows:     validRows,
	}

	err = e.imports.SaveImport(ctx, record)
	if err != nil {
		otelhelper.SetError(span, err)

		switch {
		case persistence.IsDuplicateName(err):
			return nil, importer.ErrNameTaken
		case persistence.IsPermissionDenied(err):
			return nil, importer.ErrNotAllowed
		default:
			return nil, fmt.Errorf("failed to save reconverted import: %w", err)
		}
	}

	span.SetAttributes(attribute.String(otelhelper.ImportIDKey, record.ID))

	e.logger.InfoContext(ctx, "execution data reconverted",
		"execution_id", executionID,
		"import_id", record.ID,
		"rows", record.RowCount(),
	)

	return record, nil
}
