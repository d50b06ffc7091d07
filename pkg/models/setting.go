package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SettingKind tags the runtime type of a setting value.
type SettingKind string

const (
	KindString  SettingKind = "string"
	KindNumber  SettingKind = "number"
	KindBoolean SettingKind = "boolean"
	KindJSON    SettingKind = "json"
)

// SettingValue is a tagged variant over the value types a setting can hold.
// The tag is assigned once at decode time; callers never inspect raw types.
type SettingValue struct {
	Kind SettingKind
	Str  string
	Num  float64
	Bool bool
	JSON any
}

func StringValue(s string) SettingValue  { return SettingValue{Kind: KindString, Str: s} }
func NumberValue(n float64) SettingValue { return SettingValue{Kind: KindNumber, Num: n} }
func BoolValue(b bool) SettingValue      { return SettingValue{Kind: KindBoolean, Bool: b} }
func JSONValue(v any) SettingValue       { return SettingValue{Kind: KindJSON, JSON: v} }

// IsZero reports whether the value was never set.
func (v SettingValue) IsZero() bool {
	return v.Kind == ""
}

// Native returns the untagged Go value, mainly for serialization back to
// callers that expect plain JSON.
func (v SettingValue) Native() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBoolean:
		return v.Bool
	case KindJSON:
		return v.JSON
	default:
		return nil
	}
}

// MarshalJSON encodes the value as the bare JSON value, matching the wire
// shape settings rows are stored with.
func (v SettingValue) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(v.Native())
	if err != nil {
		return nil, fmt.Errorf("failed to encode setting value: %w", err)
	}

	return data, nil
}

// UnmarshalJSON decodes a bare JSON value and assigns the kind tag from the
// decoded type. This is the single point where runtime type inspection of
// setting values happens.
func (v *SettingValue) UnmarshalJSON(data []byte) error {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("failed to decode setting value: %w", err)
	}

	*v = DecodeSettingValue(raw)

	return nil
}

// DecodeSettingValue converts an untyped JSON value into the tagged variant.
func DecodeSettingValue(raw any) SettingValue {
	switch value := raw.(type) {
	case string:
		return StringValue(value)
	case float64:
		return NumberValue(value)
	case bool:
		return BoolValue(value)
	case nil:
		return SettingValue{Kind: KindJSON, JSON: nil}
	default:
		return JSONValue(value)
	}
}

// Setting is a scoped key-value configuration entry. A nil UserID means the
// row is a global default; IsPublic exposes a user-owned row to everyone.
type Setting struct {
	ID          string       `json:"id"`
	UserID      *string      `json:"user_id,omitempty"`
	Category    string       `json:"category"    validate:"required"`
	Key         string       `json:"key"         validate:"required"`
	Value       SettingValue `json:"value"`
	Description string       `json:"description"`
	IsPublic    bool         `json:"is_public"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FlatKey returns the "{category}.{key}" lookup key settings are resolved
// under.
func (s *Setting) FlatKey() string {
	return s.Category + "." + s.Key
}

// OwnedBy reports whether the row is scoped to the given user.
func (s *Setting) OwnedBy(userID string) bool {
	return s.UserID != nil && *s.UserID == userID
}

// AutomationSetting links one setting to one automation. Linked settings
// override same-keyed global settings when the automation executes.
type AutomationSetting struct {
	ID           string    `json:"id"`
	AutomationID string    `json:"automation_id" validate:"required"`
	SettingID    string    `json:"setting_id"    validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}
