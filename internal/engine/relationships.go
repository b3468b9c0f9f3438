package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/authz"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/smartcode"
	"github.com/heraerp/hera-core/internal/store"
)

// DefaultRelationshipSmartCode is stamped on edges created without an
// explicit code.
const DefaultRelationshipSmartCode = "HERA.CORE.RELATIONSHIP.LINK.STANDARD.V1"

func (e *Engine) relationshipOp(req Request) operation {
	switch req.Action {
	case ActionCreate, ActionUpdate:
		// Upserts are idempotent on the natural key, so CREATE and UPDATE
		// share one path.
		return func(ctx context.Context) ([]any, error) { return e.upsertRelationship(ctx, req, false) }
	case ActionValidateRollback:
		return func(ctx context.Context) ([]any, error) { return e.upsertRelationship(ctx, req, true) }
	case ActionRead:
		return func(ctx context.Context) ([]any, error) { return e.readRelationships(ctx, req) }
	case ActionDelete:
		return func(ctx context.Context) ([]any, error) { return e.deleteRelationship(ctx, req) }
	}
	return nil
}

func (e *Engine) upsertRelationship(ctx context.Context, req Request, dryRun bool) ([]any, error) {
	orgID := *req.OrganizationID
	res := e.applyGuardrail(ctx, TableRelationships, req)
	payload := res.Payload

	if payloadOrg, ok, err := payloadUUID(payload, "organization_id"); err != nil {
		return nil, err
	} else if ok {
		if err := authz.CheckSameOrg(orgID, payloadOrg, "payload organization_id"); err != nil {
			return nil, err
		}
	}

	rel, err := decodeRelationship(orgID, payload)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return []any{dryRunItem(res)}, nil
	}

	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		if err := subjectExists(ctx, s, orgID, rel.FromID); err != nil {
			return err
		}
		if err := subjectExists(ctx, s, orgID, rel.ToID); err != nil {
			return err
		}
		if err := s.Relationships().UpsertRelationship(ctx, rel); err != nil {
			return err
		}
		return writeAudit(ctx, s, TableRelationships, orgID, req.Payload, res)
	})
	if err != nil {
		return nil, err
	}
	return []any{rel}, nil
}

func (e *Engine) readRelationships(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	f := req.Options.Filters
	rels, err := e.runner.Relationships().ListRelationships(ctx, orgID, store.RelationshipFilter{
		FromID:           f.FromID,
		ToID:             f.ToID,
		RelationshipType: f.Type,
		ActiveOnly:       f.ActiveOnly,
		Limit:            req.Options.Limit,
		Offset:           req.Options.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(rels))
	for _, rel := range rels {
		items = append(items, rel)
	}
	return items, nil
}

// deleteRelationship always deactivates. Edge rows are audit history;
// physical removal is not offered.
func (e *Engine) deleteRelationship(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	if req.Options.HardDelete {
		return nil, errcode.New(errcode.InvalidRequest, "relationships are deactivated, never hard-deleted")
	}
	id, ok, err := payloadUUID(req.Payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"id\" is required for DELETE")
	}
	if err := e.runner.Relationships().DeactivateRelationship(ctx, orgID, id); err != nil {
		return nil, err
	}
	rel, err := e.runner.Relationships().GetRelationship(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return []any{rel}, nil
}

func decodeRelationship(orgID uuid.UUID, payload map[string]any) (*models.Relationship, error) {
	fromID, ok, err := payloadUUID(payload, "from_id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"from_id\" is required")
	}
	toID, ok, err := payloadUUID(payload, "to_id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"to_id\" is required")
	}
	relType, err := requireString(payload, "relationship_type")
	if err != nil {
		return nil, err
	}
	if relType == models.RelTypeHasStatus {
		return nil, errcode.New(errcode.InvalidRequest, "status edges are managed by workflow transitions; use the TRANSITION action")
	}
	code, _, err := payloadString(payload, "smart_code")
	if err != nil {
		return nil, err
	}
	if code == "" {
		code = DefaultRelationshipSmartCode
	}
	if _, err := smartcode.Validate(code); err != nil {
		return nil, err
	}
	contextBag, _, err := payloadMap(payload, "context")
	if err != nil {
		return nil, err
	}
	strength, _, err := payloadNumber(payload, "strength")
	if err != nil {
		return nil, err
	}
	active := true
	if v, ok, err := payloadBool(payload, "is_active"); err != nil {
		return nil, err
	} else if ok {
		active = v
	}
	return &models.Relationship{
		OrganizationID:   orgID,
		FromID:           fromID,
		ToID:             toID,
		RelationshipType: relType,
		SmartCode:        code,
		Context:          contextBag,
		IsActive:         active,
		Strength:         strength,
	}, nil
}

// subjectExists checks that an id resolves to an entity or a transaction
// within the organization. Store lookups are tenant-scoped, so a record
// belonging to another organization fails here exactly like a nonexistent
// one.
func subjectExists(ctx context.Context, s store.Stores, orgID, id uuid.UUID) error {
	_, err := s.Entities().GetEntity(ctx, orgID, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrEntityNotFound) {
		return err
	}
	_, err = s.Transactions().GetTransaction(ctx, orgID, id)
	if errors.Is(err, store.ErrTransactionNotFound) {
		return errcode.Newf(errcode.NotFound, "record %s not found in organization", id)
	}
	return err
}
