package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ateliercrm/canal/pkg/eventbus"
	"github.com/ateliercrm/canal/pkg/executor"
	"github.com/ateliercrm/canal/pkg/importer"
	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/ateliercrm/canal/pkg/scheduler"
	"github.com/ateliercrm/canal/pkg/settings"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/trace"
)

// OwnerHeader carries the acting user's identity. Authentication itself is
// terminated upstream; the API trusts this header.
const OwnerHeader = "X-User-ID"

type APIHandlers struct {
	store     persistence.Persistence
	importer  *importer.Importer
	eventBus  eventbus.EventPublisher
	tracer    trace.Tracer
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	store persistence.Persistence,
	eventBus eventbus.EventPublisher,
	tracer trace.Tracer,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		importer:  importer.New(store.ImportRepository(), logger),
		eventBus:  eventBus,
		tracer:    tracer,
		validator: validator,
		logger:    logger,
	}
}

func (h *APIHandlers) owner(c fiber.Ctx) (string, error) {
	owner := c.Get(OwnerHeader)
	if owner == "" {
		return "", badRequest(c, "User identity header is required")
	}

	return owner, nil
}

// executorFor builds an executor whose settings view is bound to the acting
// user.
func (h *APIHandlers) executorFor(c fiber.Ctx, owner string) (*executor.Executor, *settings.Resolver, error) {
	resolver := settings.NewResolver(h.store.SettingRepository(), owner, h.logger)

	err := resolver.Refresh(c.Context())
	if err != nil {
		return nil, nil, internalError(c, err)
	}

	return executor.New(h.store, resolver, h.eventBus, h.tracer, h.logger), resolver, nil
}

// ownedAutomation loads an automation and rejects identifiers that belong to
// somebody else as not found.
func (h *APIHandlers) ownedAutomation(c fiber.Ctx, owner, id string) (*models.Automation, error) {
	automation, err := h.store.AutomationRepository().AutomationByID(c.Context(), id)
	if err != nil {
		return nil, handleDomainError(c, err)
	}

	if automation.Owner != owner {
		return nil, notFound(c, persistence.ErrAutomationNotFound.Error())
	}

	return automation, nil
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automations, err := h.store.AutomationRepository().Automations(c.Context(), owner)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"automations": automations,
		"total_count": len(automations),
	})
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	automation := &models.Automation{
		Owner:          owner,
		Name:           req.Name,
		Description:    req.Description,
		WebhookURL:     req.WebhookURL,
		WebhookMethod:  models.WebhookMethod(req.WebhookMethod),
		WebhookHeaders: req.WebhookHeaders,
		WebhookParams:  req.WebhookParams,
		Schedule:       req.Schedule,
		IsActive:       isActive,
	}

	if err := automation.ValidateWebhookConfig(); err != nil {
		return badRequest(c, err.Error())
	}

	if automation.Schedule != "" {
		if err := scheduler.Validate(automation.Schedule); err != nil {
			return badRequest(c, "Invalid schedule: "+err.Error())
		}
	}

	err = h.store.AutomationRepository().SaveAutomation(c.Context(), automation)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(automation)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automation, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(automation)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.WebhookURL != nil {
		existing.WebhookURL = *req.WebhookURL
	}

	if req.WebhookMethod != nil {
		existing.WebhookMethod = models.WebhookMethod(*req.WebhookMethod)
	}

	if req.WebhookHeaders != nil {
		existing.WebhookHeaders = req.WebhookHeaders
	}

	if req.WebhookParams != nil {
		existing.WebhookParams = req.WebhookParams
	}

	if req.Schedule != nil {
		existing.Schedule = *req.Schedule
	}

	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := existing.ValidateWebhookConfig(); err != nil {
		return badRequest(c, err.Error())
	}

	if existing.Schedule != "" {
		if err := scheduler.Validate(existing.Schedule); err != nil {
			return badRequest(c, "Invalid schedule: "+err.Error())
		}
	}

	err = h.store.AutomationRepository().SaveAutomation(c.Context(), existing)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	err = h.store.AutomationRepository().DeleteAutomation(c.Context(), owner, c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleAutomation flips the active flag. Inactive automations stay
// executable on demand; the flag only gates scheduling.
func (h *APIHandlers) ToggleAutomation(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automation, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	automation.IsActive = !automation.IsActive

	err = h.store.AutomationRepository().SaveAutomation(c.Context(), automation)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) ExecuteAutomation(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automation, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	exec, _, err := h.executorFor(c, owner)
	if err != nil {
		return err
	}

	executionID, execErr := exec.Execute(c.Context(), automation)
	if execErr != nil {
		return handleDomainError(c, execErr)
	}

	execution, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), executionID)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	_, resolver, err := h.executorFor(c, owner)
	if err != nil {
		return err
	}

	// The resolved history limit is the default; an explicit limit query
	// parameter overrides it.
	config := settings.ResolveAutomationConfig(resolver.Category(settings.CategoryAutomation))
	limit := config.ExecutionHistoryLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	executions, err := h.store.ExecutionRepository().Executions(c.Context(), owner, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
		"limit":       limit,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	execution, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	if _, err := h.ownedAutomation(c, owner, execution.AutomationID); err != nil {
		return err
	}

	return c.JSON(execution)
}

// ReconvertExecution turns an execution's response payload back into an
// import record.
func (h *APIHandlers) ReconvertExecution(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	execution, err := h.store.ExecutionRepository().ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	if _, err := h.ownedAutomation(c, owner, execution.AutomationID); err != nil {
		return err
	}

	exec, _, err := h.executorFor(c, owner)
	if err != nil {
		return err
	}

	record, convErr := exec.Reconvert(c.Context(), owner, execution.ID)
	if convErr != nil {
		return handleDomainError(c, convErr)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) GetImports(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	imports, err := h.store.ImportRepository().Imports(c.Context(), owner)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"imports":     imports,
		"total_count": len(imports),
	})
}

func (h *APIHandlers) GetImport(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	record, err := h.store.ImportRepository().ImportByID(c.Context(), owner, c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) DeleteImport(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	err = h.store.ImportRepository().DeleteImport(c.Context(), owner, c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// PreviewImport runs the upload validation pipeline without persisting
// anything and returns the first rows.
func (h *APIHandlers) PreviewImport(c fiber.Ctx) error {
	if _, err := h.owner(c); err != nil {
		return err
	}

	var req PreviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	preview, err := h.importer.Preview(req.Filename, req.ContentType, []byte(req.Content))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(preview)
}

func (h *APIHandlers) CreateImport(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req ImportRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	record, impErr := h.importer.Import(c.Context(), owner, req.Name, req.Filename, req.ContentType, []byte(req.Content))
	if impErr != nil {
		return handleDomainError(c, impErr)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) GetSettings(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	rows, err := h.store.SettingRepository().VisibleSettings(c.Context(), owner)
	if err != nil {
		return internalError(c, err)
	}

	responses := make([]SettingResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, TransformSettingResponse(row))
	}

	return c.JSON(fiber.Map{
		"settings":    responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) UpsertSetting(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	var req UpsertSettingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	setting := &models.Setting{
		Category:    req.Category,
		Key:         req.Key,
		Value:       models.DecodeSettingValue(req.Value),
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
	if !req.Global {
		setting.UserID = &owner
	}

	err = h.store.SettingRepository().UpsertSetting(c.Context(), setting)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(TransformSettingResponse(setting))
}

func (h *APIHandlers) DeleteSetting(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	err = h.store.SettingRepository().DeleteSetting(c.Context(), owner, c.Params("category"), c.Params("key"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetAutomationSettings(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automation, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	rows, err := h.store.SettingRepository().AutomationSettings(c.Context(), automation.ID)
	if err != nil {
		return internalError(c, err)
	}

	// Linked settings are consumed as a flat "{category}.{key}" dictionary.
	flat := make(map[string]any, len(rows))
	for _, row := range rows {
		flat[row.FlatKey()] = row.Value.Native()
	}

	return c.JSON(fiber.Map{
		"automation_id": automation.ID,
		"settings":      flat,
	})
}

func (h *APIHandlers) LinkAutomationSetting(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automation, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	err = h.store.SettingRepository().LinkSetting(c.Context(), automation.ID, c.Params("settingId"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) UnlinkAutomationSetting(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	automation, err := h.ownedAutomation(c, owner, c.Params("id"))
	if err != nil {
		return err
	}

	err = h.store.SettingRepository().UnlinkSetting(c.Context(), automation.ID, c.Params("settingId"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetStats aggregates the dashboard counters for the acting user.
func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	owner, err := h.owner(c)
	if err != nil {
		return err
	}

	importCount, err := h.store.ImportRepository().CountImports(c.Context(), owner)
	if err != nil {
		return internalError(c, err)
	}

	executionCounts, err := h.store.ExecutionRepository().CountExecutionsByStatus(c.Context(), owner)
	if err != nil {
		return internalError(c, err)
	}

	automations, err := h.store.AutomationRepository().Automations(c.Context(), owner)
	if err != nil {
		return internalError(c, err)
	}

	active := 0
	for _, automation := range automations {
		if automation.IsActive {
			active++
		}
	}

	return c.JSON(fiber.Map{
		"imports":     importCount,
		"automations": fiber.Map{"total": len(automations), "active": active},
		"executions": fiber.Map{
			"running": executionCounts[models.ExecutionStatusRunning],
			"success": executionCounts[models.ExecutionStatusSuccess],
			"error":   executionCounts[models.ExecutionStatusError],
		},
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Canal API is healthy"
	httpStatus := http.StatusOK

	err := h.store.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "Canal API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
