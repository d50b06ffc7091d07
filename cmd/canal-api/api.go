// Package main provides the Canal API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/ateliercrm/canal/pkg/eventbus"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/ateliercrm/canal/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger   *slog.Logger
	store    persistence.Persistence
	eventBus eventbus.EventBus
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:   logger,
		store:    store,
		eventBus: eventBus,
		tracer:   tracer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.store, a.eventBus, a.tracer, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Canal API")
	})

	au := app.Group("/automations")
	au.Get("/", handlers.GetAutomations)
	au.Post("/", handlers.CreateAutomation)
	au.Get("/:id", handlers.GetAutomation)
	au.Patch("/:id", handlers.UpdateAutomation)
	au.Delete("/:id", handlers.DeleteAutomation)
	au.Post("/:id/toggle", handlers.ToggleAutomation)
	au.Post("/:id/execute", handlers.ExecuteAutomation)

	// Per-automation setting links:
	au.Get("/:id/settings", handlers.GetAutomationSettings)
	au.Post("/:id/settings/:settingId", handlers.LinkAutomationSetting)
	au.Delete("/:id/settings/:settingId", handlers.UnlinkAutomationSetting)

	ex := app.Group("/executions")
	ex.Get("/", handlers.GetExecutions)
	ex.Get("/:id", handlers.GetExecution)
	ex.Post("/:id/reconvert", handlers.ReconvertExecution)

	im := app.Group("/imports")
	im.Get("/", handlers.GetImports)
	im.Post("/", handlers.CreateImport)
	im.Post("/preview", handlers.PreviewImport)
	im.Get("/:id", handlers.GetImport)
	im.Delete("/:id", handlers.DeleteImport)

	se := app.Group("/settings")
	se.Get("/", handlers.GetSettings)
	se.Put("/", handlers.UpsertSetting)
	se.Delete("/:category/:key", handlers.DeleteSetting)

	app.Get("/stats", handlers.GetStats)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
