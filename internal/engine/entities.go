package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/authz"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/guardrail"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/smartcode"
	"github.com/heraerp/hera-core/internal/store"
)

func (e *Engine) entityOp(req Request) operation {
	switch req.Action {
	case ActionCreate:
		return func(ctx context.Context) ([]any, error) { return e.createEntity(ctx, req, false) }
	case ActionValidateRollback:
		return func(ctx context.Context) ([]any, error) { return e.createEntity(ctx, req, true) }
	case ActionRead:
		return func(ctx context.Context) ([]any, error) { return e.readEntities(ctx, req) }
	case ActionUpdate:
		return func(ctx context.Context) ([]any, error) { return e.updateEntity(ctx, req) }
	case ActionDelete:
		return func(ctx context.Context) ([]any, error) { return e.deleteEntity(ctx, req) }
	}
	return nil
}

// createEntity validates everything before opening the transaction, so a
// dry run exercises the exact pipeline a real CREATE would.
func (e *Engine) createEntity(ctx context.Context, req Request, dryRun bool) ([]any, error) {
	orgID := *req.OrganizationID
	res := e.applyGuardrail(ctx, TableEntities, req)
	payload := res.Payload

	if payloadOrg, ok, err := payloadUUID(payload, "organization_id"); err != nil {
		return nil, err
	} else if ok {
		if err := authz.CheckSameOrg(orgID, payloadOrg, "payload organization_id"); err != nil {
			return nil, err
		}
	}

	ent, err := decodeEntity(orgID, payload)
	if err != nil {
		return nil, err
	}

	fields := make([]*models.DynamicField, 0, len(req.DynamicFields))
	for name, in := range req.DynamicFields {
		f, err := e.buildDynamicField(orgID, ent.ID, ent.EntityType, name, in)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if err := validateRelationshipInputs(req.Relationships); err != nil {
		return nil, err
	}

	if dryRun {
		return []any{dryRunItem(res)}, nil
	}

	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		if err := s.Entities().CreateEntity(ctx, ent); err != nil {
			return err
		}
		for _, f := range fields {
			if err := s.Entities().UpsertDynamicField(ctx, f); err != nil {
				return err
			}
		}
		for _, in := range req.Relationships {
			if err := upsertRequestedRelationship(ctx, s, orgID, ent.ID, in); err != nil {
				return err
			}
		}
		if err := writeAudit(ctx, s, TableEntities, orgID, req.Payload, res); err != nil {
			return err
		}
		if req.Options.InitialStatusID != nil {
			return e.workflow.AssignInitialStatus(ctx, s, orgID, ent.ID, *req.Options.InitialStatusID, *req.ActorUserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	item, err := e.entityItem(ctx, orgID, ent.ID, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

func (e *Engine) readEntities(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	f := req.Options.Filters
	entities, err := e.runner.Entities().ListEntities(ctx, orgID, store.EntityFilter{
		ID:         f.ID,
		EntityType: f.Type,
		EntityCode: f.Code,
		Status:     f.Status,
		Limit:      req.Options.Limit,
		Offset:     req.Options.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(entities))
	for _, ent := range entities {
		if err := e.attachIncludes(ctx, orgID, ent, req.Options); err != nil {
			return nil, err
		}
		items = append(items, ent)
	}
	return items, nil
}

// updateEntity merges the provided core fields, upserts dynamic fields by
// name, and touches relationships only when the request names them.
func (e *Engine) updateEntity(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	id, ok, err := payloadUUID(req.Payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"id\" is required for UPDATE")
	}

	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		ent, err := s.Entities().GetEntity(ctx, orgID, id)
		if err != nil {
			return err
		}
		if err := mergeEntity(ent, req.Payload); err != nil {
			return err
		}
		if err := s.Entities().UpdateEntity(ctx, ent); err != nil {
			return err
		}
		for name, in := range req.DynamicFields {
			f, err := e.buildDynamicField(orgID, ent.ID, ent.EntityType, name, in)
			if err != nil {
				return err
			}
			if err := s.Entities().UpsertDynamicField(ctx, f); err != nil {
				return err
			}
		}
		for _, in := range req.Relationships {
			if err := upsertRequestedRelationship(ctx, s, orgID, ent.ID, in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	item, err := e.entityItem(ctx, orgID, id, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

// deleteEntity archives by default. A hard delete needs both the explicit
// flag and an eligible entity type; system types always refuse.
func (e *Engine) deleteEntity(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	id, ok, err := payloadUUID(req.Payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"id\" is required for DELETE")
	}

	var hard bool
	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		ent, err := s.Entities().GetEntity(ctx, orgID, id)
		if err != nil {
			return err
		}
		if req.Options.HardDelete {
			if systemEntityTypes[ent.EntityType] {
				return errcode.Newf(errcode.InvalidRequest, "entity type %q cannot be hard-deleted", ent.EntityType)
			}
			hard = true
			return s.Entities().HardDeleteEntity(ctx, orgID, id)
		}
		return s.Entities().SetEntityStatus(ctx, orgID, id, models.StatusInactive)
	})
	if err != nil {
		return nil, err
	}

	if hard {
		return []any{map[string]any{"id": id, "hard_deleted": true}}, nil
	}
	item, err := e.entityItem(ctx, orgID, id, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

func (e *Engine) entityItem(ctx context.Context, orgID, id uuid.UUID, opts Options) (*models.Entity, error) {
	ent, err := e.runner.Entities().GetEntity(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := e.attachIncludes(ctx, orgID, ent, opts); err != nil {
		return nil, err
	}
	return ent, nil
}

func (e *Engine) attachIncludes(ctx context.Context, orgID uuid.UUID, ent *models.Entity, opts Options) error {
	if opts.IncludeDynamic {
		fields, err := e.runner.Entities().ListDynamicFields(ctx, orgID, ent.ID)
		if err != nil {
			return err
		}
		ent.DynamicFields = fields
	}
	if opts.IncludeRelationships {
		rels, err := e.runner.Relationships().ListRelationships(ctx, orgID, store.RelationshipFilter{
			FromID:     ent.ID,
			ActiveOnly: true,
		})
		if err != nil {
			return err
		}
		ent.Relationships = rels
	}
	return nil
}

func decodeEntity(orgID uuid.UUID, payload map[string]any) (*models.Entity, error) {
	id, ok, err := payloadUUID(payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		id = uuid.Must(uuid.NewV7())
	}
	entityType, err := requireString(payload, "entity_type")
	if err != nil {
		return nil, err
	}
	entityName, err := requireString(payload, "entity_name")
	if err != nil {
		return nil, err
	}
	code, err := validateSmartCode(payload)
	if err != nil {
		return nil, err
	}
	entityCode, _, err := payloadString(payload, "entity_code")
	if err != nil {
		return nil, err
	}
	status, _, err := payloadString(payload, "status")
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = models.StatusActive
	}
	metadata, _, err := payloadMap(payload, "metadata")
	if err != nil {
		return nil, err
	}
	return &models.Entity{
		ID:             id,
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityName:     entityName,
		EntityCode:     entityCode,
		SmartCode:      code,
		Status:         status,
		Metadata:       metadata,
	}, nil
}

// mergeEntity applies the fields present in the payload, leaving the rest
// untouched.
func mergeEntity(ent *models.Entity, payload map[string]any) error {
	if v, ok, err := payloadString(payload, "entity_name"); err != nil {
		return err
	} else if ok {
		ent.EntityName = v
	}
	if v, ok, err := payloadString(payload, "entity_code"); err != nil {
		return err
	} else if ok {
		ent.EntityCode = v
	}
	if v, ok, err := payloadString(payload, "smart_code"); err != nil {
		return err
	} else if ok {
		if _, err := smartcode.Validate(v); err != nil {
			return err
		}
		ent.SmartCode = v
	}
	if v, ok, err := payloadString(payload, "status"); err != nil {
		return err
	} else if ok {
		ent.Status = v
	}
	if v, ok, err := payloadMap(payload, "metadata"); err != nil {
		return err
	} else if ok {
		ent.Metadata = v
	}
	return nil
}

func validateRelationshipInputs(inputs []RelationshipInput) error {
	for _, in := range inputs {
		if in.Type == "" {
			return errcode.New(errcode.MissingRequiredField, "relationship type is required")
		}
		if in.ToID == uuid.Nil {
			return errcode.New(errcode.MissingRequiredField, "relationship to_id is required")
		}
		if in.Type == models.RelTypeHasStatus {
			return errcode.New(errcode.InvalidRequest, "status edges are managed by workflow transitions; use the TRANSITION action")
		}
	}
	return nil
}

// upsertRequestedRelationship writes one edge requested alongside a record
// write. The target must resolve within the same organization; references
// into other tenants are indistinguishable from nonexistent ids.
func upsertRequestedRelationship(ctx context.Context, s store.Stores, orgID, fromID uuid.UUID, in RelationshipInput) error {
	if err := subjectExists(ctx, s, orgID, in.ToID); err != nil {
		return err
	}
	code := in.SmartCode
	if code == "" {
		code = DefaultRelationshipSmartCode
	}
	return s.Relationships().UpsertRelationship(ctx, &models.Relationship{
		OrganizationID:   orgID,
		FromID:           fromID,
		ToID:             in.ToID,
		RelationshipType: in.Type,
		SmartCode:        code,
		Context:          in.Context,
		IsActive:         true,
	})
}

func dryRunItem(res guardrail.Result) map[string]any {
	return map[string]any{
		"fixed":             res.Fixed,
		"corrected_payload": res.Payload,
		"fixes":             res.Fixes,
	}
}
