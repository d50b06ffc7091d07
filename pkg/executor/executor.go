// Package executor performs webhook invocations for automations and durably
// records their outcome.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ateliercrm/canal/pkg/eventbus"
	"github.com/ateliercrm/canal/pkg/events"
	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/otelhelper"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/ateliercrm/canal/pkg/settings"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrMissingWebhookURL rejects execution before any record is created.
	ErrMissingWebhookURL = errors.New("cette automatisation n'a pas d'URL webhook configurée")

	// ErrWebhookTimeout marks an invocation cancelled by the resolved
	// timeout. The in-flight request is aborted, not just ignored.
	ErrWebhookTimeout = errors.New("webhook timeout")
)

// Categories of linked settings the executor treats as request overrides.
const (
	categoryWebhookHeaders = "webhook_headers"
	categoryWebhookParams  = "webhook_params"
)

// Executor runs one webhook invocation per call. Concurrent invocations of
// the same automation are not serialized; each owns an independent record.
type Executor struct {
	executions persistence.ExecutionRepository
	imports    persistence.ImportRepository
	settings   persistence.SettingRepository
	resolver   *settings.Resolver
	client     *http.Client
	eventBus   eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates an executor. The HTTP client carries no timeout of its own;
// the per-execution deadline comes from resolved settings.
func New(
	store persistence.Persistence,
	resolver *settings.Resolver,
	eventBus eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		executions: store.ExecutionRepository(),
		imports:    store.ImportRepository(),
		settings:   store.SettingRepository(),
		resolver:   resolver,
		client:     &http.Client{},
		eventBus:   eventBus,
		tracer:     tracer,
		logger:     logger.With("module", "executor"),
	}
}

// Execute invokes the automation's webhook once and records the outcome.
// It returns the execution ID. A webhook answering outside the success
// status range yields an error-status record, not a returned error;
// timeouts, transport failures and store failures after the running insert
// are both recorded and returned.
func (e *Executor) Execute(ctx context.Context, automation *models.Automation) (string, error) {
	if automation.WebhookURL == "" {
		return "", ErrMissingWebhookURL
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.execute",
		attribute.String(otelhelper.AutomationIDKey, automation.ID),
		attribute.String(otelhelper.AutomationNameKey, automation.Name),
	)
	defer span.End()

	config, overrides, err := e.resolveSettings(ctx, automation)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	execution := &models.Execution{
		AutomationID: automation.ID,
		Status:       models.ExecutionStatusRunning,
		Data:         map[string]any{},
	}

	err = e.executions.CreateExecution(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to create execution record: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	startedAt := time.Now()

	e.publish(ctx, automation.ID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, automation.ID),
		ExecutionID: execution.ID,
	})

	err = e.invoke(ctx, automation, execution, config, overrides)
	if err != nil {
		otelhelper.SetError(span, err)

		return execution.ID, e.fail(ctx, automation, execution, startedAt, err)
	}

	if execution.Status == models.ExecutionStatusSuccess {
		e.publish(ctx, automation.ID, events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, automation.ID),
			ExecutionID: execution.ID,
			Duration:    time.Since(startedAt),
		})
	} else {
		e.publish(ctx, automation.ID, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, automation.ID),
			ExecutionID: execution.ID,
			Error:       derefString(execution.ErrorMessage),
			Duration:    time.Since(startedAt),
		})
	}

	return execution.ID, nil
}

// resolveSettings merges the global automation-category settings with the
// rows linked to this automation. Linked rows override global ones; linked
// rows in the webhook_headers and webhook_params categories come back as
// request overrides.
func (e *Executor) resolveSettings(ctx context.Context, automation *models.Automation) (settings.AutomationConfig, requestOverrides, error) {
	values := e.resolver.Category(settings.CategoryAutomation)

	linked, err := e.settings.AutomationSettings(ctx, automation.ID)
	if err != nil {
		return settings.AutomationConfig{}, requestOverrides{}, fmt.Errorf("failed to load linked settings: %w", err)
	}

	overrides := requestOverrides{
		headers: make(map[string]string),
		params:  make(map[string]any),
	}

	for _, setting := range linked {
		switch setting.Category {
		case settings.CategoryAutomation:
			values[setting.Key] = setting.Value
		case categoryWebhookHeaders:
			if setting.Value.Kind == models.KindString {
				overrides.headers[setting.Key] = setting.Value.Str
			}
		case categoryWebhookParams:
			overrides.params[setting.Key] = setting.Value.Native()
		}
	}

	return settings.ResolveAutomationConfig(values), overrides, nil
}

type requestOverrides struct {
	headers map[string]string
	params  map[string]any
}

// invoke performs the HTTP call and commits the terminal update. A non-nil
// return means something after the running insert broke and the fail path
// must take over.
func (e *Executor) invoke(
	ctx context.Context,
	automation *models.Automation,
	execution *models.Execution,
	config settings.AutomationConfig,
	overrides requestOverrides,
) error {
	callCtx, cancel := context.WithTimeout(ctx, config.WebhookTimeout)
	defer cancel()

	request, err := e.buildRequest(callCtx, automation, execution, config, overrides)
	if err != nil {
		return err
	}

	response, err := e.client.Do(request)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return ErrWebhookTimeout
		}

		return fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		err := response.Body.Close()
		if err != nil {
			e.logger.WarnContext(ctx, "failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return ErrWebhookTimeout
		}

		return fmt.Errorf("failed to read webhook response: %w", err)
	}

	result := parseResponseBody(body)

	success := response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices

	execution.Data = result

	if success {
		execution.Status = models.ExecutionStatusSuccess
		execution.ErrorMessage = nil
	} else {
		message := failureMessage(result, response.StatusCode)
		execution.Status = models.ExecutionStatusError
		execution.ErrorMessage = &message
	}

	err = e.executions.UpdateExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to update execution record: %w", err)
	}

	return nil
}

// buildRequest constructs the outbound call. POST, PUT and PATCH carry a
// JSON body; GET and DELETE carry the same fields as query parameters and
// no body.
func (e *Executor) buildRequest(
	ctx context.Context,
	automation *models.Automation,
	execution *models.Execution,
	config settings.AutomationConfig,
	overrides requestOverrides,
) (*http.Request, error) {
	method := automation.WebhookMethod
	if method == "" {
		method = config.DefaultMethod
	}

	payload := make(map[string]any, len(automation.WebhookParams)+len(overrides.params)+3)

	for key, value := range automation.WebhookParams {
		payload[key] = value
	}

	for key, value := range overrides.params {
		payload[key] = value
	}

	// Injected fields always win over stored params.
	payload["automation_id"] = automation.ID
	payload["execution_id"] = execution.ID
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	var request *http.Request

	if method.HasBody() {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode webhook body: %w", err)
		}

		request, err = http.NewRequestWithContext(ctx, string(method), automation.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build webhook request: %w", err)
		}

		request.Header.Set("Content-Type", "application/json")
	} else {
		target, err := url.Parse(automation.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse webhook URL: %w", err)
		}

		query := target.Query()
		for key, value := range payload {
			query.Set(key, fmt.Sprintf("%v", value))
		}

		target.RawQuery = query.Encode()

		request, err = http.NewRequestWithContext(ctx, string(method), target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build webhook request: %w", err)
		}
	}

	for key, value := range automation.WebhookHeaders {
		request.Header.Set(key, value)
	}

	for key, value := range overrides.headers {
		request.Header.Set(key, value)
	}

	return request, nil
}

// fail runs the best-effort corrective update and returns the original
// error. Corrective failures are logged, never propagated.
func (e *Executor) fail(ctx context.Context, automation *models.Automation, execution *models.Execution, startedAt time.Time, cause error) error {
	message := cause.Error()
	execution.Status = models.ExecutionStatusError
	execution.ErrorMessage = &message

	err := e.executions.UpdateExecution(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to mark execution as errored",
			"execution_id", execution.ID,
			"error", err,
		)
	}

	e.publish(ctx, automation.ID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, automation.ID),
		ExecutionID: execution.ID,
		Error:       message,
		Duration:    time.Since(startedAt),
	})

	return cause
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

// parseResponseBody decodes the response as JSON, falling back to a message
// wrapper around the raw text.
func parseResponseBody(body []byte) any {
	var result any

	err := json.Unmarshal(body, &result)
	if err != nil {
		return map[string]any{"message": strings.TrimSpace(string(body))}
	}

	return result
}

// failureMessage prefers an error field, then a message field, then the
// bare status code.
func failureMessage(result any, statusCode int) string {
	if object, ok := result.(map[string]any); ok {
		if text, ok := object["error"].(string); ok && text != "" {
			return text
		}

		if text, ok := object["message"].(string); ok && text != "" {
			return text
		}
	}

	return fmt.Sprintf("HTTP %d", statusCode)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
