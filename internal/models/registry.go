package models

// FieldRegistry maps (entity_type, field_name) pairs to a declared dynamic
// field type. Writes of registered fields are checked against the declared
// type; unregistered fields fall back to whatever type the caller declares.
// This keeps the "no migration needed" ergonomics while pinning the known
// surface.
type FieldRegistry struct {
	fields map[string]map[string]string
}

// NewFieldRegistry builds a registry seeded with the engine's built-in
// declarations.
func NewFieldRegistry() *FieldRegistry {
	r := &FieldRegistry{fields: map[string]map[string]string{}}
	for entityType, fields := range builtinFields {
		for name, fieldType := range fields {
			r.Register(entityType, name, fieldType)
		}
	}
	return r
}

// Register declares the type of a dynamic field for an entity type.
// Later declarations overwrite earlier ones.
func (r *FieldRegistry) Register(entityType, fieldName, fieldType string) {
	byName, ok := r.fields[entityType]
	if !ok {
		byName = map[string]string{}
		r.fields[entityType] = byName
	}
	byName[fieldName] = fieldType
}

// Lookup returns the declared type for a field, if any.
func (r *FieldRegistry) Lookup(entityType, fieldName string) (string, bool) {
	byName, ok := r.fields[entityType]
	if !ok {
		return "", false
	}
	fieldType, ok := byName[fieldName]
	return fieldType, ok
}

// builtinFields pins the dynamic fields the engine's own features read.
var builtinFields = map[string]map[string]string{
	EntityTypeWorkflowStatus: {
		"is_initial": FieldTypeBoolean,
		"is_final":   FieldTypeBoolean,
		"order":      FieldTypeNumber,
	},
	"customer": {
		"email":     FieldTypeText,
		"phone":     FieldTypeText,
		"vip":       FieldTypeBoolean,
		"birthdate": FieldTypeDate,
	},
	"account": {
		"ledger_type":    FieldTypeText,
		"account_number": FieldTypeText,
	},
}
