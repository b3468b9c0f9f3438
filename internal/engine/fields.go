package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/smartcode"
)

// DefaultFieldSmartCode is stamped on dynamic fields when the caller does
// not supply one.
const DefaultFieldSmartCode = "HERA.CORE.DYNAMIC.FIELD.STANDARD.V1"

// buildDynamicField resolves the field type, checks the value against it,
// and populates exactly one value column. The type comes from the input,
// falling back to the registry for known (entity_type, field_name) pairs
// and finally to inference from the value's kind. A registered type that
// contradicts the caller's declared type is a TypeMismatch.
func (e *Engine) buildDynamicField(orgID, entityID uuid.UUID, entityType, name string, in DynamicFieldInput) (*models.DynamicField, error) {
	fieldType := in.FieldType
	if registered, ok := e.registry.Lookup(entityType, name); ok {
		if fieldType != "" && fieldType != registered {
			return nil, errcode.Newf(errcode.TypeMismatch,
				"field %q of %s is registered as %s, not %s", name, entityType, registered, fieldType)
		}
		fieldType = registered
	}
	if fieldType == "" {
		fieldType = inferFieldType(in.Value)
	}

	f := &models.DynamicField{
		ID:             uuid.Must(uuid.NewV7()),
		OrganizationID: orgID,
		EntityID:       entityID,
		FieldName:      name,
		FieldType:      fieldType,
		SmartCode:      in.SmartCode,
	}
	if f.SmartCode == "" {
		f.SmartCode = DefaultFieldSmartCode
	} else if _, err := smartcode.Validate(f.SmartCode); err != nil {
		return nil, err
	}

	switch fieldType {
	case models.FieldTypeText:
		s, ok := in.Value.(string)
		if !ok {
			return nil, typeMismatch(name, fieldType)
		}
		f.ValueText = &s
	case models.FieldTypeNumber:
		n, ok := toFloat(in.Value)
		if !ok {
			return nil, typeMismatch(name, fieldType)
		}
		f.ValueNumber = &n
	case models.FieldTypeBoolean:
		b, ok := in.Value.(bool)
		if !ok {
			return nil, typeMismatch(name, fieldType)
		}
		f.ValueBoolean = &b
	case models.FieldTypeDate:
		ts, err := toTime(in.Value)
		if err != nil {
			return nil, typeMismatch(name, fieldType)
		}
		f.ValueDate = &ts
	case models.FieldTypeJSON:
		mm, ok := in.Value.(map[string]any)
		if !ok {
			return nil, typeMismatch(name, fieldType)
		}
		f.ValueJSON = mm
	default:
		return nil, errcode.Newf(errcode.TypeMismatch, "unknown field type %q for %q", fieldType, name)
	}
	return f, nil
}

func typeMismatch(name, fieldType string) error {
	return errcode.Newf(errcode.TypeMismatch, "value of field %q does not match type %s", name, fieldType)
}

func inferFieldType(v any) string {
	switch v.(type) {
	case string:
		return models.FieldTypeText
	case bool:
		return models.FieldTypeBoolean
	case map[string]any:
		return models.FieldTypeJSON
	case time.Time:
		return models.FieldTypeDate
	default:
		if _, ok := toFloat(v); ok {
			return models.FieldTypeNumber
		}
		return models.FieldTypeText
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339, t)
	}
	return time.Time{}, errcode.New(errcode.TypeMismatch, "not a timestamp")
}
