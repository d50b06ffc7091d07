package settings

import (
	"time"

	"github.com/ateliercrm/canal/pkg/models"
)

// CategoryAutomation holds the settings the automation executor consults.
const CategoryAutomation = "automation"

// Keys within the automation category.
const (
	KeyWebhookTimeout        = "webhook_timeout"
	KeyDefaultWebhookMethod  = "default_webhook_method"
	KeyMaxRetries            = "max_retries"
	KeyRetryDelay            = "retry_delay"
	KeyEnableNotifications   = "enable_notifications"
	KeyExecutionHistoryLimit = "execution_history_limit"
)

const (
	defaultWebhookTimeout        = 30000 * time.Millisecond
	defaultRetryDelay            = 1000 * time.Millisecond
	defaultMaxRetries            = 3
	defaultExecutionHistoryLimit = 100
)

// AutomationConfig is the automation-category settings resolved against
// their defaults.
type AutomationConfig struct {
	WebhookTimeout        time.Duration
	DefaultMethod         models.WebhookMethod
	MaxRetries            int
	RetryDelay            time.Duration
	EnableNotifications   bool
	ExecutionHistoryLimit int
}

// ResolveAutomationConfig materializes the automation config from a bare-key
// value map, typically a Category projection merged with per-automation
// overrides. Absent or mistyped entries fall back to the defaults.
func ResolveAutomationConfig(values map[string]models.SettingValue) AutomationConfig {
	return AutomationConfig{
		WebhookTimeout:        durationSetting(values, KeyWebhookTimeout, defaultWebhookTimeout),
		DefaultMethod:         methodSetting(values, KeyDefaultWebhookMethod, models.MethodPost),
		MaxRetries:            intSetting(values, KeyMaxRetries, defaultMaxRetries),
		RetryDelay:            durationSetting(values, KeyRetryDelay, defaultRetryDelay),
		EnableNotifications:   boolSetting(values, KeyEnableNotifications, true),
		ExecutionHistoryLimit: intSetting(values, KeyExecutionHistoryLimit, defaultExecutionHistoryLimit),
	}
}

// durationSetting reads a millisecond number, matching how timeouts are
// stored.
func durationSetting(values map[string]models.SettingValue, key string, defaultValue time.Duration) time.Duration {
	value, ok := values[key]
	if !ok || value.Kind != models.KindNumber || value.Num <= 0 {
		return defaultValue
	}

	return time.Duration(value.Num) * time.Millisecond
}

func intSetting(values map[string]models.SettingValue, key string, defaultValue int) int {
	value, ok := values[key]
	if !ok || value.Kind != models.KindNumber {
		return defaultValue
	}

	return int(value.Num)
}

func boolSetting(values map[string]models.SettingValue, key string, defaultValue bool) bool {
	value, ok := values[key]
	if !ok || value.Kind != models.KindBoolean {
		return defaultValue
	}

	return value.Bool
}

func methodSetting(values map[string]models.SettingValue, key string, defaultValue models.WebhookMethod) models.WebhookMethod {
	value, ok := values[key]
	if !ok || value.Kind != models.KindString || value.Str == "" {
		return defaultValue
	}

	return models.WebhookMethod(value.Str)
}
