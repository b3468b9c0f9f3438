// Package engine is the uniform operation surface over the six universal
// tables. One call carries an action, an actor, an organization, and an
// open payload; the engine runs the security gate, the guardrail
// corrections, smart code validation, and the store mutation as one
// database transaction.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/heraerp/hera-core/internal/authz"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/guardrail"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/smartcode"
	"github.com/heraerp/hera-core/internal/store"
	"github.com/heraerp/hera-core/internal/telemetry"
	"github.com/heraerp/hera-core/internal/workflow"
)

const maxConflictRetries = 4

// Engine executes uniform operations.
type Engine struct {
	runner    store.TxRunner
	gate      *authz.Gate
	guardrail *guardrail.Service
	workflow  *workflow.Engine
	registry  *models.FieldRegistry
}

// New assembles the engine over a transactional store and a security gate.
func New(runner store.TxRunner, gate *authz.Gate) (*Engine, error) {
	svc, err := guardrail.New()
	if err != nil {
		return nil, err
	}
	return &Engine{
		runner:    runner,
		gate:      gate,
		guardrail: svc,
		workflow:  workflow.New(runner),
		registry:  models.NewFieldRegistry(),
	}, nil
}

// Workflow exposes the workflow engine sharing this engine's store, for
// callers driving transitions directly.
func (e *Engine) Workflow() *workflow.Engine {
	return e.workflow
}

// Execute runs one uniform operation and always returns a well-formed
// Response; failures are carried in Response.Error, never panics.
func (e *Engine) Execute(ctx context.Context, table Table, req Request) Response {
	start := time.Now()
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(
		attribute.String("table", string(table)),
		attribute.String("action", string(req.Action)),
	)
	m.OperationsTotal.Add(ctx, 1, attrs)

	resp := e.execute(ctx, table, req)

	m.OperationDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if !resp.Success {
		m.OperationErrorsTotal.Add(ctx, 1, attrs)
		log.Debug().
			Str("table", string(table)).
			Str("action", string(req.Action)).
			Str("code", resp.Error.Code).
			Msg("Operation failed")
	}
	return resp
}

func (e *Engine) execute(ctx context.Context, table Table, req Request) Response {
	op, err := e.dispatch(table, req)
	if err != nil {
		return fail(asCoded(err))
	}

	if err := e.gate.Authorize(ctx, authz.Check{
		ActorID: req.ActorUserID,
		OrgID:   req.OrganizationID,
		Class:   classify(table, req),
	}); err != nil {
		telemetry.GetMetrics().AuthzDeniedTotal.Add(ctx, 1)
		return fail(asCoded(err))
	}

	items, err := e.withConflictRetry(ctx, op)
	if err != nil {
		return fail(asCoded(err))
	}
	return ok(items...)
}

type operation func(ctx context.Context) ([]any, error)

// dispatch resolves the operation before authorization so an unknown table
// or action fails fast as InvalidRequest.
func (e *Engine) dispatch(table Table, req Request) (operation, error) {
	var op operation
	switch table {
	case TableEntities:
		op = e.entityOp(req)
	case TableRelationships:
		op = e.relationshipOp(req)
	case TableTransactions:
		op = e.transactionOp(req)
	default:
		return nil, errcode.Newf(errcode.InvalidRequest, "unknown table %q", table)
	}
	if op == nil {
		return nil, errcode.Newf(errcode.InvalidRequest, "action %q is not valid for table %q", req.Action, table)
	}
	return op, nil
}

// withConflictRetry retries only on store.ErrTxConflict, the transient
// serialization failure a relational backend may emit. Coded errors,
// ConcurrentTransition included, pass through untouched: retrying a lost
// transition is the caller's decision.
func (e *Engine) withConflictRetry(ctx context.Context, op operation) ([]any, error) {
	return backoff.Retry(ctx, func() ([]any, error) {
		items, err := op(ctx)
		if err != nil && !errors.Is(err, store.ErrTxConflict) {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, store.ErrTxConflict) {
			telemetry.GetMetrics().OperationRetriesTotal.Add(ctx, 1)
		}
		return items, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxConflictRetries))
}

// System entity and relationship types may be written in the platform
// organization; everything else is a business operation there.
var systemEntityTypes = map[string]bool{
	models.EntityTypeWorkflowStatus:   true,
	models.EntityTypeWorkflowTemplate: true,
}

var systemRelationshipTypes = map[string]bool{
	models.RelTypeCanTransitionTo: true,
	models.RelTypeHasStage:        true,
	models.RelTypeUserMemberOfOrg: true,
}

func classify(table Table, req Request) authz.Class {
	if req.Action == ActionRead {
		return authz.ClassSystem
	}
	switch table {
	case TableEntities:
		if t, _, err := payloadString(req.Payload, "entity_type"); err == nil && systemEntityTypes[t] {
			return authz.ClassSystem
		}
	case TableRelationships:
		if t, _, err := payloadString(req.Payload, "relationship_type"); err == nil && systemRelationshipTypes[t] {
			return authz.ClassSystem
		}
	}
	return authz.ClassBusiness
}

// guardTable maps the CRUD entry point to the table name the guardrail and
// smart code generator know.
func guardTable(table Table) string {
	switch table {
	case TableEntities:
		return smartcode.TableEntities
	case TableRelationships:
		return smartcode.TableRelationships
	case TableTransactions:
		return smartcode.TableTransactions
	}
	return ""
}

// applyGuardrail runs the auto-fix passes and reports the result for the
// audit record. Never rejects; a payload the passes cannot repair fails
// later in validation.
func (e *Engine) applyGuardrail(ctx context.Context, table Table, req Request) guardrail.Result {
	res := e.guardrail.AutoFix(guardTable(table), req.Payload, guardrail.Context{
		OrganizationID: *req.OrganizationID,
	})
	m := telemetry.GetMetrics()
	if res.Fixed {
		m.GuardrailPayloadsFixed.Add(ctx, 1)
		m.GuardrailFixesTotal.Add(ctx, int64(len(res.Fixes)))
	}
	return res
}

// writeAudit records the guardrail outcome as an immutable transaction in
// the same store transaction as the primary write.
func writeAudit(ctx context.Context, s store.Stores, table Table, orgID uuid.UUID, original map[string]any, res guardrail.Result) error {
	return s.Transactions().CreateTransaction(ctx, guardrail.AuditTransaction(guardTable(table), orgID, original, res))
}

// validateSmartCode enforces the taxonomy shape on a payload that already
// went through guardrail generation. A still-empty code means no template
// matched and the caller must supply one.
func validateSmartCode(payload map[string]any) (string, error) {
	code, ok, err := payloadString(payload, "smart_code")
	if err != nil {
		return "", err
	}
	if !ok || code == "" {
		return "", errcode.New(errcode.MissingRequiredField, "smart_code is required and could not be generated")
	}
	if _, err := smartcode.Validate(code); err != nil {
		return "", err
	}
	return code, nil
}

// asCoded maps store sentinels onto the caller-facing taxonomy; coded
// errors pass through.
func asCoded(err error) *errcode.Error {
	var coded *errcode.Error
	if errors.As(err, &coded) {
		return coded
	}
	switch {
	case errors.Is(err, store.ErrEntityNotFound),
		errors.Is(err, store.ErrRelationshipNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		return errcode.New(errcode.NotFound, err.Error())
	case errors.Is(err, store.ErrOrganizationNotFound):
		return errcode.New(errcode.OrganizationEntityNotFound, err.Error())
	case errors.Is(err, store.ErrTransactionNotPending):
		return errcode.New(errcode.InvalidRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateTransactionCode):
		return errcode.New(errcode.DuplicateTransactionCode, err.Error())
	case errors.Is(err, store.ErrRelationshipCycle):
		return errcode.New(errcode.RelationshipCycle, err.Error())
	case errors.Is(err, store.ErrConcurrentTransition):
		return errcode.New(errcode.ConcurrentTransition, err.Error())
	}
	return errcode.New(errcode.InternalError, err.Error())
}
