// Package store defines the storage contract for the six universal tables.
// Two implementations exist: memory (dev and unit tests) and postgres.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/models"
)

// Sentinel errors for common error conditions.
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrEntityNotFound            = errors.New("entity not found")
	ErrRelationshipNotFound      = errors.New("relationship not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrTransactionNotPending     = errors.New("transaction is not pending approval")
	ErrDuplicateTransactionCode  = errors.New("transaction code already exists in organization")
	ErrConcurrentTransition      = errors.New("subject is locked by a concurrent transition")
	ErrTxConflict                = errors.New("transaction conflict, retryable")
	ErrRelationshipCycle         = errors.New("relationship would create a cycle")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// EntityFilter narrows entity reads. Zero values mean "any".
type EntityFilter struct {
	ID         uuid.UUID
	EntityType string
	EntityCode string
	Status     string
	Limit      int
	Offset     int
}

// RelationshipFilter narrows relationship reads. Zero values mean "any".
type RelationshipFilter struct {
	FromID           uuid.UUID
	ToID             uuid.UUID
	RelationshipType string
	ActiveOnly       bool
	Limit            int
	Offset           int
}

// TransactionFilter narrows transaction reads. Zero values mean "any".
type TransactionFilter struct {
	ID              uuid.UUID
	TransactionType string
	TransactionCode string
	Status          string
	Limit           int
	Offset          int
}

// OrganizationStore manages tenant rows.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	// EnsurePlatformOrganization creates the reserved platform organization
	// row if it does not exist yet. Idempotent; called at startup.
	EnsurePlatformOrganization(ctx context.Context) error
}

// EntityStore manages entities and their dynamic fields.
type EntityStore interface {
	CreateEntity(ctx context.Context, e *models.Entity) error
	GetEntity(ctx context.Context, orgID, id uuid.UUID) (*models.Entity, error)
	ListEntities(ctx context.Context, orgID uuid.UUID, f EntityFilter) ([]*models.Entity, error)
	UpdateEntity(ctx context.Context, e *models.Entity) error
	SetEntityStatus(ctx context.Context, orgID, id uuid.UUID, status string) error
	// HardDeleteEntity physically removes the entity and cascades to its
	// dynamic fields. Relationships touching it are deactivated, not removed.
	HardDeleteEntity(ctx context.Context, orgID, id uuid.UUID) error

	UpsertDynamicField(ctx context.Context, f *models.DynamicField) error
	ListDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]*models.DynamicField, error)
}

// RelationshipStore manages the directed typed edge store.
type RelationshipStore interface {
	// UpsertRelationship is idempotent on (org, from, to, type): an existing
	// edge is reactivated and its context/smart code refreshed in place.
	// Hierarchical types are checked for cycles and rejected with
	// ErrRelationshipCycle.
	UpsertRelationship(ctx context.Context, r *models.Relationship) error
	GetRelationship(ctx context.Context, orgID, id uuid.UUID) (*models.Relationship, error)
	ListRelationships(ctx context.Context, orgID uuid.UUID, f RelationshipFilter) ([]*models.Relationship, error)
	DeactivateRelationship(ctx context.Context, orgID, id uuid.UUID) error
	// ActiveByFromAndType returns the single active edge of the given type
	// leaving fromID, or ErrRelationshipNotFound.
	ActiveByFromAndType(ctx context.Context, orgID, fromID uuid.UUID, relType string) (*models.Relationship, error)
	// EdgeExists reports whether an active edge (from → to, type) exists.
	EdgeExists(ctx context.Context, orgID, fromID, toID uuid.UUID, relType string) (bool, error)
	// LockSubject takes a row-level lock on the subject (entity or
	// transaction) for the remainder of the surrounding store transaction.
	// A subject already locked by a concurrent transition fails fast with
	// ErrConcurrentTransition.
	LockSubject(ctx context.Context, orgID, subjectID uuid.UUID) error
}

// TransactionStore manages transaction headers and lines.
type TransactionStore interface {
	// CreateTransaction writes the header and its lines. Line numbers are
	// re-numbered contiguously from 1 in input order.
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, orgID, id uuid.UUID) (*models.Transaction, error)
	ListTransactions(ctx context.Context, orgID uuid.UUID, f TransactionFilter) ([]*models.Transaction, error)
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	SetTransactionStatus(ctx context.Context, orgID, id uuid.UUID, status string) error
	HardDeleteTransaction(ctx context.Context, orgID, id uuid.UUID) error
	ListLines(ctx context.Context, orgID, transactionID uuid.UUID) ([]*models.TransactionLine, error)
	// ApproveTransaction moves a pending transaction to approved. An
	// already approved transaction reports changed=false and no error;
	// any other status fails with ErrTransactionNotPending.
	ApproveTransaction(ctx context.Context, orgID, id uuid.UUID) (changed bool, err error)
}

// Stores bundles the per-table stores sharing one backend (and, inside
// WithinTx, one database transaction).
type Stores interface {
	Organizations() OrganizationStore
	Entities() EntityStore
	Relationships() RelationshipStore
	Transactions() TransactionStore
}

// TxRunner executes a function atomically: every store call made through the
// passed Stores commits or rolls back as one unit.
type TxRunner interface {
	Stores
	WithinTx(ctx context.Context, fn func(s Stores) error) error
}
