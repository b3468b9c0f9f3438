package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/errcode"
)

// Payload fields arrive as an open bag (decoded JSON), so every read is a
// presence check plus a type check. A present field with the wrong kind is
// a TypeMismatch; absence is left to per-action required-field checks.

func payloadString(m map[string]any, key string) (string, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, errcode.Newf(errcode.TypeMismatch, "field %q must be a string", key)
	}
	return s, true, nil
}

func payloadUUID(m map[string]any, key string) (uuid.UUID, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return uuid.Nil, false, nil
	}
	switch t := v.(type) {
	case string:
		id, err := uuid.Parse(t)
		if err != nil {
			return uuid.Nil, false, errcode.Newf(errcode.TypeMismatch, "field %q must be a UUID", key)
		}
		return id, true, nil
	case uuid.UUID:
		return t, true, nil
	}
	return uuid.Nil, false, errcode.Newf(errcode.TypeMismatch, "field %q must be a UUID", key)
}

func payloadNumber(m map[string]any, key string) (float64, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false, errcode.Newf(errcode.TypeMismatch, "field %q must be a number", key)
	}
	return f, true, nil
}

func payloadTime(m map[string]any, key string) (time.Time, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Time{}, false, nil
	}
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false, errcode.Newf(errcode.TypeMismatch, "field %q must be an RFC 3339 timestamp", key)
		}
		return ts, true, nil
	case time.Time:
		return t, true, nil
	}
	return time.Time{}, false, errcode.Newf(errcode.TypeMismatch, "field %q must be an RFC 3339 timestamp", key)
}

func payloadMap(m map[string]any, key string) (map[string]any, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	mm, ok := v.(map[string]any)
	if !ok {
		return nil, false, errcode.Newf(errcode.TypeMismatch, "field %q must be an object", key)
	}
	return mm, true, nil
}

func payloadBool(m map[string]any, key string) (bool, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, errcode.Newf(errcode.TypeMismatch, "field %q must be a boolean", key)
	}
	return b, true, nil
}

// toFloat accepts the numeric kinds JSON decoding and Go callers produce.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func requireString(m map[string]any, key string) (string, error) {
	s, ok, err := payloadString(m, key)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", errcode.Newf(errcode.MissingRequiredField, "field %q is required", key)
	}
	return s, nil
}
