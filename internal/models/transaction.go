package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction statuses driven by the engine.
const (
	TxnStatusPending  = "pending"
	TxnStatusApproved = "approved"
	TxnStatusInactive = "inactive"
)

// TxnTypeGuardrailAutofix is the transaction type of the immutable audit
// record the guardrail service writes for every CREATE-class payload.
const TxnTypeGuardrailAutofix = "guardrail_autofix"

// Transaction is a business event: appointment, sale, payment, journal entry.
type Transaction struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	TransactionType string
	TransactionCode string // unique per organization
	SmartCode       string
	SourceEntityID  uuid.UUID
	TargetEntityID  uuid.UUID
	TotalAmount     float64
	TransactionDate time.Time
	Status          string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Populated on read when the caller asks for them, and on create.
	Lines []*TransactionLine `json:",omitempty"`
}

// TransactionLine is a component of a Transaction: a service rendered, a
// product sold, a journal leg. Line numbers are contiguous from 1 within a
// transaction; the store re-numbers on insert.
type TransactionLine struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	TransactionID  uuid.UUID
	LineNumber     int
	LineType       string
	Quantity       float64
	UnitAmount     float64
	LineAmount     float64
	SmartCode      string
	LineData       map[string]any
	CreatedAt      time.Time
}
