// Package models defines the core domain models for CSV imports and webhook automations.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// WebhookMethod is the HTTP method an automation uses to call its webhook.
type WebhookMethod string

const (
	MethodGet    WebhookMethod = "GET"
	MethodPost   WebhookMethod = "POST"
	MethodPut    WebhookMethod = "PUT"
	MethodDelete WebhookMethod = "DELETE"
	MethodPatch  WebhookMethod = "PATCH"
)

// HasBody reports whether requests with this method carry a JSON body.
// GET and DELETE encode their parameters as query string instead.
func (m WebhookMethod) HasBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}

// Automation is a stored configuration describing one outbound webhook trigger.
type Automation struct {
	ID             string            `json:"id"`
	Owner          string            `json:"owner"           validate:"required"`
	Name           string            `json:"name"            validate:"required,min=1"`
	Description    string            `json:"description"`
	WebhookURL     string            `json:"webhook_url"`
	WebhookMethod  WebhookMethod     `json:"webhook_method"`
	WebhookHeaders map[string]string `json:"webhook_headers"`
	WebhookParams  map[string]any    `json:"webhook_params"`
	// Schedule is an optional 5-field cron expression. Automations without
	// one are only executed on demand.
	Schedule  string    `json:"schedule,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// webhookConfigSchema validates the webhook portion of an automation. The
// method enum mirrors the methods the executor knows how to encode.
var webhookConfigSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"webhook_url": map[string]any{
			"type":   "string",
			"format": "uri",
		},
		"webhook_method": map[string]any{
			"type": "string",
			"enum": []any{"GET", "POST", "PUT", "DELETE", "PATCH"},
		},
		"webhook_headers": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"webhook_params": map[string]any{
			"type": "object",
		},
	},
}

// ValidateWebhookConfig checks the automation's webhook fields against the
// configuration schema. An empty webhook_url is allowed here: executing such
// an automation is rejected by the executor, not by storage.
func (a *Automation) ValidateWebhookConfig() error {
	doc := map[string]any{
		"webhook_headers": headersAsAny(a.WebhookHeaders),
		"webhook_params":  a.WebhookParams,
	}
	if a.WebhookURL != "" {
		doc["webhook_url"] = a.WebhookURL
	}

	// An empty method means "use the resolved default" and is not part of
	// the enum.
	if a.WebhookMethod != "" {
		doc["webhook_method"] = string(a.WebhookMethod)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(webhookConfigSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate webhook configuration: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid webhook configuration: %s", strings.Join(descriptions, "; "))
	}

	return nil
}

func headersAsAny(headers map[string]string) map[string]any {
	out := make(map[string]any, len(headers))
	for k, v := range headers {
		out[k] = v
	}

	return out
}
