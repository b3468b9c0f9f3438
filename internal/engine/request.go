package engine

import (
	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/errcode"
)

// Table names the three CRUD entry points.
type Table string

const (
	TableEntities      Table = "entities"
	TableRelationships Table = "relationships"
	TableTransactions  Table = "transactions"
)

// Action is the uniform operation vocabulary shared by the three tables.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionRead    Action = "READ"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionApprove Action = "APPROVE"
	// ActionValidateRollback runs the CREATE validation pipeline without
	// persisting anything, returning the corrected payload and the fixes
	// that would apply.
	ActionValidateRollback Action = "VALIDATE_ROLLBACK"
)

// DynamicFieldInput is one typed attribute in a CREATE or UPDATE call,
// keyed by field name in Request.DynamicFields.
type DynamicFieldInput struct {
	FieldType string `json:"field_type,omitempty"`
	Value     any    `json:"value"`
	SmartCode string `json:"smart_code,omitempty"`
}

// RelationshipInput is one edge requested alongside an entity or
// transaction write. The from side is the record being written.
type RelationshipInput struct {
	Type      string         `json:"type"`
	ToID      uuid.UUID      `json:"to_id"`
	SmartCode string         `json:"smart_code,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Filters narrows READ calls. Zero values mean "any". Type matches
// entity_type, relationship_type, or transaction_type depending on the
// table.
type Filters struct {
	ID         uuid.UUID `json:"id,omitempty"`
	Type       string    `json:"type,omitempty"`
	Code       string    `json:"code,omitempty"`
	Status     string    `json:"status,omitempty"`
	FromID     uuid.UUID `json:"from_id,omitempty"`
	ToID       uuid.UUID `json:"to_id,omitempty"`
	ActiveOnly bool      `json:"active_only,omitempty"`
}

// Options tunes a single call.
type Options struct {
	IncludeLines         bool `json:"include_lines,omitempty"`
	IncludeDynamic       bool `json:"include_dynamic,omitempty"`
	IncludeRelationships bool `json:"include_relationships,omitempty"`

	// HardDelete asks DELETE to physically remove the record. Honored only
	// for record types eligible for hard deletion.
	HardDelete bool `json:"hard_delete,omitempty"`

	// InitialStatusID assigns a workflow status to the created record in
	// the same transaction as the CREATE.
	InitialStatusID *uuid.UUID `json:"initial_status_id,omitempty"`
	Reason          string     `json:"reason,omitempty"`

	Limit   int     `json:"limit,omitempty"`
	Offset  int     `json:"offset,omitempty"`
	Filters Filters `json:"filters,omitempty"`
}

// Request is the uniform call shape. ActorUserID and OrganizationID are
// pointers so an absent field is distinct from the zero UUID.
type Request struct {
	Action         Action                       `json:"action"`
	ActorUserID    *uuid.UUID                   `json:"actor_user_id,omitempty"`
	OrganizationID *uuid.UUID                   `json:"organization_id,omitempty"`
	Payload        map[string]any               `json:"payload,omitempty"`
	DynamicFields  map[string]DynamicFieldInput `json:"dynamic_fields,omitempty"`
	Relationships  []RelationshipInput          `json:"relationships,omitempty"`
	Options        Options                      `json:"options,omitempty"`
}

// Response is the uniform result shape. Error is set exactly when Success
// is false; callers branch on Error.Code, never on Message.
type Response struct {
	Success bool           `json:"success"`
	Items   []any          `json:"items"`
	Error   *errcode.Error `json:"error,omitempty"`
}

func ok(items ...any) Response {
	if items == nil {
		items = []any{}
	}
	return Response{Success: true, Items: items}
}

func fail(err *errcode.Error) Response {
	return Response{Success: false, Items: []any{}, Error: err}
}
