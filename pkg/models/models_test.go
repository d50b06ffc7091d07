package models_test

import (
	"encoding/json"
	"testing"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookMethod_HasBody(t *testing.T) {
	t.Parallel()

	assert.True(t, models.MethodPost.HasBody())
	assert.True(t, models.MethodPut.HasBody())
	assert.True(t, models.MethodPatch.HasBody())
	assert.False(t, models.MethodGet.HasBody())
	assert.False(t, models.MethodDelete.HasBody())
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, models.ExecutionStatusRunning.IsTerminal())
	assert.True(t, models.ExecutionStatusSuccess.IsTerminal())
	assert.True(t, models.ExecutionStatusError.IsTerminal())
}

func TestAutomation_ValidateWebhookConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		automation models.Automation
		wantErr    bool
	}{
		{
			name: "valid POST automation",
			automation: models.Automation{
				WebhookURL:     "https://hooks.example.com/wf/1",
				WebhookMethod:  models.MethodPost,
				WebhookHeaders: map[string]string{"Authorization": "Bearer x"},
				WebhookParams:  map[string]any{"foo": "bar"},
			},
			wantErr: false,
		},
		{
			name: "empty webhook url is allowed at storage time",
			automation: models.Automation{
				WebhookMethod: models.MethodGet,
			},
			wantErr: false,
		},
		{
			name: "empty method means resolved default",
			automation: models.Automation{
				WebhookURL: "https://hooks.example.com/wf/1",
			},
			wantErr: false,
		},
		{
			name: "unknown method rejected",
			automation: models.Automation{
				WebhookURL:    "https://hooks.example.com/wf/1",
				WebhookMethod: "FETCH",
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.automation.ValidateWebhookConfig()
			if testCase.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingValue_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		kind models.SettingKind
	}{
		{name: "string", raw: `"POST"`, kind: models.KindString},
		{name: "number", raw: `30000`, kind: models.KindNumber},
		{name: "boolean", raw: `true`, kind: models.KindBoolean},
		{name: "object", raw: `{"a":1}`, kind: models.KindJSON},
		{name: "null", raw: `null`, kind: models.KindJSON},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var value models.SettingValue

			require.NoError(t, json.Unmarshal([]byte(testCase.raw), &value))
			assert.Equal(t, testCase.kind, value.Kind)

			encoded, err := json.Marshal(value)
			require.NoError(t, err)
			assert.JSONEq(t, testCase.raw, string(encoded))
		})
	}
}

func TestSetting_FlatKey(t *testing.T) {
	t.Parallel()

	setting := models.Setting{Category: "automation", Key: "webhook_timeout"}
	assert.Equal(t, "automation.webhook_timeout", setting.FlatKey())
}

func TestSetting_OwnedBy(t *testing.T) {
	t.Parallel()

	owner := "user-1"
	owned := models.Setting{UserID: &owner}
	global := models.Setting{}

	assert.True(t, owned.OwnedBy("user-1"))
	assert.False(t, owned.OwnedBy("user-2"))
	assert.False(t, global.OwnedBy("user-1"))
}
