// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/ateliercrm/canal/pkg/models"

// CreateAutomationRequest represents the request body for creating a new
// automation.
type CreateAutomationRequest struct {
	Name           string            `json:"name"            validate:"required,min=1"`
	Description    string            `json:"description"`
	WebhookURL     string            `json:"webhook_url"     validate:"omitempty,url"`
	WebhookMethod  string            `json:"webhook_method"  validate:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	WebhookHeaders map[string]string `json:"webhook_headers"`
	WebhookParams  map[string]any    `json:"webhook_params"`
	Schedule       string            `json:"schedule"`
	IsActive       *bool             `json:"is_active"`
}

// UpdateAutomationRequest represents the request body for updating an
// existing automation. All fields are optional to support partial updates.
type UpdateAutomationRequest struct {
	Name           *string           `json:"name,omitempty"           validate:"omitempty,min=1"`
	Description    *string           `json:"description,omitempty"`
	WebhookURL     *string           `json:"webhook_url,omitempty"    validate:"omitempty,url"`
	WebhookMethod  *string           `json:"webhook_method,omitempty" validate:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	WebhookParams  map[string]any    `json:"webhook_params,omitempty"`
	Schedule       *string           `json:"schedule,omitempty"`
	IsActive       *bool             `json:"is_active,omitempty"`
}

// ImportRequest carries an uploaded CSV as text plus the name the import is
// stored under. Size, encoding and row validation happen downstream, with
// user-facing messages.
type ImportRequest struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// PreviewRequest is the non-committing variant of ImportRequest.
type PreviewRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// UpsertSettingRequest creates or updates one setting row. Global makes the
// row scope-less (shared defaults); otherwise the row belongs to the acting
// user.
type UpsertSettingRequest struct {
	Category    string `json:"category"    validate:"required"`
	Key         string `json:"key"         validate:"required"`
	Value       any    `json:"value"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
	Global      bool   `json:"global"`
}

// SettingResponse flattens a setting row for API consumers.
type SettingResponse struct {
	ID          string `json:"id"`
	UserID      *string `json:"user_id,omitempty"`
	Category    string `json:"category"`
	Key         string `json:"key"`
	FlatKey     string `json:"flat_key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// TransformSettingResponse converts a stored setting into the flat wire
// shape, including the "{category}.{key}" lookup key.
func TransformSettingResponse(setting *models.Setting) SettingResponse {
	return SettingResponse{
		ID:          setting.ID,
		UserID:      setting.UserID,
		Category:    setting.Category,
		Key:         setting.Key,
		FlatKey:     setting.FlatKey(),
		Value:       setting.Value.Native(),
		Description: setting.Description,
		IsPublic:    setting.IsPublic,
	}
}
