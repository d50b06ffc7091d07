package web

import (
	"errors"

	"github.com/ateliercrm/canal/pkg/csv"
	"github.com/ateliercrm/canal/pkg/executor"
	"github.com/ateliercrm/canal/pkg/importer"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("permission_denied").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// validationSentinels are domain rejections with user-facing messages. They
// all map to a plain 400 with the message as detail.
var validationSentinels = []error{
	importer.ErrEmptyFile,
	importer.ErrFileTooLarge,
	importer.ErrNotCSV,
	importer.ErrBadEncoding,
	importer.ErrTooManyRows,
	importer.ErrNoValidData,
	importer.ErrNameRequired,
	csv.ErrEmptyInput,
	csv.ErrMissingDataLine,
	csv.ErrEmptyHeader,
	csv.ErrNoColumns,
	csv.ErrDuplicateColumns,
	csv.ErrNoValidRows,
	csv.ErrTooManyParseErrors,
	csv.ErrNotTabular,
	executor.ErrMissingWebhookURL,
}

func isValidationError(err error) bool {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	var ratioErr *importer.RatioError

	return errors.As(err, &ratioErr)
}

// handleDomainError provides typed error handling for domain layer errors.
func handleDomainError(c fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, importer.ErrNameTaken) || persistence.IsDuplicateName(err):
		return conflict(c, importer.ErrNameTaken.Error())

	case errors.Is(err, importer.ErrNotAllowed) || persistence.IsPermissionDenied(err):
		return forbidden(c, importer.ErrNotAllowed.Error())

	case persistence.IsNotFound(err):
		return notFound(c, err.Error())

	case errors.Is(err, executor.ErrWebhookTimeout):
		problem := problems.NewStatusProblem(504).
			WithInstance(c.Path()).
			WithType("webhook_timeout").
			WithDetail(err.Error())

		return c.Status(fiber.StatusGatewayTimeout).JSON(problem)

	default:
		return internalError(c, err)
	}
}
