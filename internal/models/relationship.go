package models

import (
	"time"

	"github.com/google/uuid"
)

// Relationship types the engine itself gives meaning to. The type system is
// open; everything else is an ordinary business edge.
const (
	RelTypeHasStatus       = "has_status"
	RelTypeCanTransitionTo = "can_transition_to"
	RelTypeHasStage        = "has_stage"
	RelTypeParentOf        = "parent_of"
	RelTypeUserMemberOfOrg = "user_member_of_org"
)

// Relationship is a directed, typed edge between two records (entities or
// transactions). Used both for ordinary business graphs and for workflow
// status. Logical delete flips IsActive; rows are kept for audit history.
type Relationship struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	FromID           uuid.UUID
	ToID             uuid.UUID
	RelationshipType string
	SmartCode        string
	Context          map[string]any
	IsActive         bool
	Strength         float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsHierarchical reports whether a relationship type forms a parent/child
// chain that must stay acyclic.
func IsHierarchical(relType string) bool {
	return relType == RelTypeParentOf
}
