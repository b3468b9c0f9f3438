package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity statuses. Soft delete sets StatusInactive; the row is never removed
// unless the caller explicitly asks for a hard delete.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Well-known entity types. EntityType is an open string; these are the types
// the engine itself gives meaning to.
const (
	EntityTypeWorkflowTemplate = "workflow_template"
	EntityTypeWorkflowStatus   = "workflow_status"
)

// Entity represents any noun in the business: customer, staff, product,
// GL account, workflow status, branch. The type system is open; the smart
// code carries the semantic classification.
type Entity struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	EntityType     string
	EntityName     string
	EntityCode     string // optional business key, unique-ish within (org, type)
	SmartCode      string
	Status         string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Populated on read when the caller asks for them.
	DynamicFields []*DynamicField `json:",omitempty"`
	Relationships []*Relationship `json:",omitempty"`
}

// Dynamic field value kinds.
const (
	FieldTypeText    = "text"
	FieldTypeNumber  = "number"
	FieldTypeBoolean = "boolean"
	FieldTypeDate    = "date"
	FieldTypeJSON    = "json"
)

// DynamicField is a typed attribute attached to an Entity outside its core
// columns. Exactly one value column is populated, matching FieldType.
type DynamicField struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	EntityID       uuid.UUID
	FieldName      string
	FieldType      string
	ValueText      *string
	ValueNumber    *float64
	ValueBoolean   *bool
	ValueDate      *time.Time
	ValueJSON      map[string]any
	SmartCode      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Value returns the populated value column as an untyped value.
func (f *DynamicField) Value() any {
	switch f.FieldType {
	case FieldTypeText:
		if f.ValueText != nil {
			return *f.ValueText
		}
	case FieldTypeNumber:
		if f.ValueNumber != nil {
			return *f.ValueNumber
		}
	case FieldTypeBoolean:
		if f.ValueBoolean != nil {
			return *f.ValueBoolean
		}
	case FieldTypeDate:
		if f.ValueDate != nil {
			return *f.ValueDate
		}
	case FieldTypeJSON:
		if f.ValueJSON != nil {
			return f.ValueJSON
		}
	}
	return nil
}
