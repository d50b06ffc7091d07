package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence/file"
	"github.com/ateliercrm/canal/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	validate := validator.New(validator.WithRequiredStructEnabled())
	tracer := noop.NewTracerProvider().Tracer("test")

	handlers := web.NewAPIHandlers(p, nil, tracer, validate, logger)

	app := fiber.New()

	a := app.Group("/automations")
	a.Get("/", handlers.GetAutomations)
	a.Post("/", handlers.CreateAutomation)
	a.Get("/:id", handlers.GetAutomation)
	a.Patch("/:id", handlers.UpdateAutomation)
	a.Delete("/:id", handlers.DeleteAutomation)
	a.Post("/:id/toggle", handlers.ToggleAutomation)
	a.Post("/:id/execute", handlers.ExecuteAutomation)
	a.Get("/:id/settings", handlers.GetAutomationSettings)
	a.Post("/:id/settings/:settingId", handlers.LinkAutomationSetting)
	a.Delete("/:id/settings/:settingId", handlers.UnlinkAutomationSetting)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/reconvert", handlers.ReconvertExecution)

	i := app.Group("/imports")
	i.Get("/", handlers.GetImports)
	i.Post("/", handlers.CreateImport)
	i.Post("/preview", handlers.PreviewImport)
	i.Get("/:id", handlers.GetImport)
	i.Delete("/:id", handlers.DeleteImport)

	s := app.Group("/settings")
	s.Get("/", handlers.GetSettings)
	s.Put("/", handlers.UpsertSetting)
	s.Delete("/:category/:key", handlers.DeleteSetting)

	app.Get("/stats", handlers.GetStats)
	app.Get("/health", handlers.HealthCheck)

	return app, p
}

func doJSON(t *testing.T, app *fiber.App, method, path, owner string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if owner != "" {
		req.Header.Set(web.OwnerHeader, owner)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}

func TestAPIHandlers_CreateAutomation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateAutomationRequest{
				Name:          "Relance clients",
				WebhookURL:    "https://hooks.example.com/relance",
				WebhookMethod: "POST",
				WebhookParams: map[string]any{"channel": "crm"},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreateAutomationRequest{WebhookURL: "https://hooks.example.com"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - bad method",
			requestBody: web.CreateAutomationRequest{
				Name:          "Relance clients",
				WebhookMethod: "FETCH",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			resp := doJSON(t, app, http.MethodPost, "/automations/", "user-1", testCase.requestBody)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, testCase.expectedStatus, resp.StatusCode)

			if testCase.expectedStatus == http.StatusCreated {
				var automation models.Automation
				decodeBody(t, resp, &automation)
				assert.NotEmpty(t, automation.ID)
				assert.Equal(t, "user-1", automation.Owner)
				assert.True(t, automation.IsActive)
			}
		})
	}
}

func TestAPIHandlers_MissingOwnerHeader(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/automations/", "", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_GetAutomationScopedByOwner(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)

	automation := &models.Automation{Owner: "user-1", Name: "mine"}
	require.NoError(t, p.AutomationRepository().SaveAutomation(context.Background(), automation))

	resp := doJSON(t, app, http.MethodGet, "/automations/"+automation.ID, "user-2", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateAutomationPartial(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)

	automation := &models.Automation{
		Owner:         "user-1",
		Name:          "original",
		WebhookURL:    "https://hooks.example.com/a",
		WebhookMethod: models.MethodPost,
		IsActive:      true,
	}
	require.NoError(t, p.AutomationRepository().SaveAutomation(context.Background(), automation))

	name := "renamed"
	resp := doJSON(t, app, http.MethodPatch, "/automations/"+automation.ID, "user-1", web.UpdateAutomationRequest{Name: &name})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Automation
	decodeBody(t, resp, &updated)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "https://hooks.example.com/a", updated.WebhookURL)
	assert.True(t, updated.IsActive)
}

func TestAPIHandlers_ToggleAutomation(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)

	automation := &models.Automation{Owner: "user-1", Name: "toggle-me", IsActive: true}
	require.NoError(t, p.AutomationRepository().SaveAutomation(context.Background(), automation))

	resp := doJSON(t, app, http.MethodPost, "/automations/"+automation.ID+"/toggle", "user-1", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var toggled models.Automation
	decodeBody(t, resp, &toggled)
	assert.False(t, toggled.IsActive)
}

func TestAPIHandlers_ExecuteAutomation(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(server.Close)

	automation := &models.Automation{
		Owner:         "user-1",
		Name:          "ping",
		WebhookURL:    server.URL,
		WebhookMethod: models.MethodPost,
	}
	require.NoError(t, p.AutomationRepository().SaveAutomation(context.Background(), automation))

	resp := doJSON(t, app, http.MethodPost, "/automations/"+automation.ID+"/execute", "user-1", nil)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var execution models.Execution
	decodeBody(t, resp, &execution)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, automation.ID, execution.AutomationID)
}

func TestAPIHandlers_ExecuteAutomationWithoutURL(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)

	automation := &models.Automation{Owner: "user-1", Name: "no-url"}
	require.NoError(t, p.AutomationRepository().SaveAutomation(context.Background(), automation))

	resp := doJSON(t, app, http.MethodPost, "/automations/"+automation.ID+"/execute", "user-1", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ImportLifecycle(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	content := "nom,email\nDurand,durand@example.com\nMartin,martin@example.com\n"

	// Preview does not persist anything.
	resp := doJSON(t, app, http.MethodPost, "/imports/preview", "user-1", web.PreviewRequest{
		Filename: "contacts.csv",
		Content:  content,
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var preview struct {
		Columns   []string `json:"columns"`
		TotalRows int      `json:"total_rows"`
	}
	decodeBody(t, resp, &preview)
	assert.Equal(t, []string{"nom", "email"}, preview.Columns)
	assert.Equal(t, 2, preview.TotalRows)

	listResp := doJSON(t, app, http.MethodGet, "/imports/", "user-1", nil)

	var listing struct {
		TotalCount int `json:"total_count"`
	}
	decodeBody(t, listResp, &listing)
	assert.Equal(t, 0, listing.TotalCount)

	// Commit the import.
	createResp := doJSON(t, app, http.MethodPost, "/imports/", "user-1", web.ImportRequest{
		Name:     "contacts",
		Filename: "contacts.csv",
		Content:  content,
	})

	assert.Equal(t, http.StatusCreated, createResp.StatusCode)

	var record models.Import
	decodeBody(t, createResp, &record)
	assert.Equal(t, 2, record.RowCount())

	// Same name again conflicts.
	dupResp := doJSON(t, app, http.MethodPost, "/imports/", "user-1", web.ImportRequest{
		Name:     "contacts",
		Filename: "contacts.csv",
		Content:  content,
	})

	defer func() { _ = dupResp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, dupResp.StatusCode)

	deleteResp := doJSON(t, app, http.MethodDelete, "/imports/"+record.ID, "user-1", nil)

	defer func() { _ = deleteResp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)
}

func TestAPIHandlers_ImportValidationMessages(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/imports/", "user-1", web.ImportRequest{
		Name:     "vide",
		Filename: "vide.csv",
		Content:  "",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, resp, &problem)
	assert.Equal(t, "le fichier sélectionné est vide", problem.Detail)
}

func TestAPIHandlers_SettingsLifecycle(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPut, "/settings/", "user-1", web.UpsertSettingRequest{
		Category: "automation",
		Key:      "webhook_timeout",
		Value:    5000,
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var setting web.SettingResponse
	decodeBody(t, resp, &setting)
	assert.Equal(t, "automation.webhook_timeout", setting.FlatKey)
	require.NotNil(t, setting.UserID)
	assert.Equal(t, "user-1", *setting.UserID)

	listResp := doJSON(t, app, http.MethodGet, "/settings/", "user-1", nil)

	var listing struct {
		Settings []web.SettingResponse `json:"settings"`
	}
	decodeBody(t, listResp, &listing)
	require.Len(t, listing.Settings, 1)

	deleteResp := doJSON(t, app, http.MethodDelete, "/settings/automation/webhook_timeout", "user-1", nil)

	defer func() { _ = deleteResp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)
}

func TestAPIHandlers_ExecutionHistoryLimitFromSettings(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	limitResp := doJSON(t, app, http.MethodPut, "/settings/", "user-1", web.UpsertSettingRequest{
		Category: "automation",
		Key:      "execution_history_limit",
		Value:    7,
	})

	defer func() { _ = limitResp.Body.Close() }()

	require.Equal(t, http.StatusOK, limitResp.StatusCode)

	resp := doJSON(t, app, http.MethodGet, "/executions/", "user-1", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Limit int `json:"limit"`
	}
	decodeBody(t, resp, &listing)
	assert.Equal(t, 7, listing.Limit)
}

func TestAPIHandlers_Stats(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	ctx := context.Background()

	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, &models.Automation{Owner: "user-1", Name: "a", IsActive: true}))
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, &models.Automation{Owner: "user-1", Name: "b"}))

	resp := doJSON(t, app, http.MethodGet, "/stats", "user-1", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Automations struct {
			Total  int `json:"total"`
			Active int `json:"active"`
		} `json:"automations"`
		Imports int `json:"imports"`
	}
	decodeBody(t, resp, &stats)
	assert.Equal(t, 2, stats.Automations.Total)
	assert.Equal(t, 1, stats.Automations.Active)
	assert.Equal(t, 0, stats.Imports)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", "", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
