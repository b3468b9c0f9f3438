// Package workflow implements the status-relationship state machine: the
// current status of a subject (entity or transaction) is an active
// has_status edge to a workflow_status entity, and legal moves are
// can_transition_to edges between status entities. No status column exists
// anywhere.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

// Smart codes stamped on the workflow's own relationship rows.
const (
	StatusRelSmartCode     = "HERA.WORKFLOW.STATUS.ASSIGN.REL.V1"
	TransitionRelSmartCode = "HERA.WORKFLOW.TRANSITION.ALLOW.REL.V1"
	StageRelSmartCode      = "HERA.WORKFLOW.TEMPLATE.STAGE.REL.V1"
)

// TransitionOptions carries the audit facts recorded on the new status edge.
type TransitionOptions struct {
	ActorID uuid.UUID
	Reason  string
}

// Engine drives status assignments and transitions.
type Engine struct {
	runner store.TxRunner
}

// New creates a workflow engine over the given transactional store.
func New(runner store.TxRunner) *Engine {
	return &Engine{runner: runner}
}

// CurrentStatus returns the workflow_status entity the subject's single
// active has_status edge points at, or a NoCurrentStatus error.
func (e *Engine) CurrentStatus(ctx context.Context, orgID, subjectID uuid.UUID) (*models.Entity, error) {
	rel, err := e.runner.Relationships().ActiveByFromAndType(ctx, orgID, subjectID, models.RelTypeHasStatus)
	if err != nil {
		if errors.Is(err, store.ErrRelationshipNotFound) {
			return nil, errcode.Newf(errcode.NoCurrentStatus, "subject %s has no status assigned", subjectID)
		}
		return nil, err
	}
	return e.runner.Entities().GetEntity(ctx, orgID, rel.ToID)
}

// AssignInitialStatus gives a subject its first status. Runs against the
// Stores of an enclosing transaction so a CREATE and its initial status
// commit together. Any active status edge already present is swapped out,
// keeping the single-active invariant.
func (e *Engine) AssignInitialStatus(ctx context.Context, s store.Stores, orgID, subjectID, statusID, actorID uuid.UUID) error {
	status, err := s.Entities().GetEntity(ctx, orgID, statusID)
	if err != nil {
		return err
	}
	if status.EntityType != models.EntityTypeWorkflowStatus {
		return errcode.Newf(errcode.IllegalTransition, "entity %s is not a workflow status", statusID)
	}
	if current, err := s.Relationships().ActiveByFromAndType(ctx, orgID, subjectID, models.RelTypeHasStatus); err == nil {
		if err := s.Relationships().DeactivateRelationship(ctx, orgID, current.ID); err != nil {
			return err
		}
	} else if !errors.Is(err, store.ErrRelationshipNotFound) {
		return err
	}
	return s.Relationships().UpsertRelationship(ctx, &models.Relationship{
		OrganizationID:   orgID,
		FromID:           subjectID,
		ToID:             statusID,
		RelationshipType: models.RelTypeHasStatus,
		SmartCode:        StatusRelSmartCode,
		IsActive:         true,
		Context: map[string]any{
			"reason":      "initial",
			"actor_id":    actorID.String(),
			"assigned_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// TransitionStatus moves the subject from its current status to the target.
// The deactivate-old/activate-new pair commits atomically; concurrent
// transitions on the same subject serialize on the subject row, and the
// loser fails with a retryable ConcurrentTransition.
func (e *Engine) TransitionStatus(ctx context.Context, orgID, subjectID, targetStatusID uuid.UUID, opts TransitionOptions) (*models.Entity, error) {
	observed, err := e.runner.Relationships().ActiveByFromAndType(ctx, orgID, subjectID, models.RelTypeHasStatus)
	if err != nil {
		if errors.Is(err, store.ErrRelationshipNotFound) {
			return nil, errcode.Newf(errcode.NoCurrentStatus,
				"subject %s has no status assigned; assign one at CREATE time", subjectID)
		}
		return nil, err
	}

	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		if err := s.Relationships().LockSubject(ctx, orgID, subjectID); err != nil {
			return mapLockErr(err)
		}
		// Re-read under the lock; a different edge means a concurrent
		// transition won the race between our read and the lock.
		current, err := s.Relationships().ActiveByFromAndType(ctx, orgID, subjectID, models.RelTypeHasStatus)
		if err != nil {
			if errors.Is(err, store.ErrRelationshipNotFound) {
				return errcode.Newf(errcode.ConcurrentTransition,
					"status of %s changed under a concurrent transition", subjectID)
			}
			return err
		}
		if current.ID != observed.ID || current.ToID != observed.ToID {
			return errcode.Newf(errcode.ConcurrentTransition,
				"status of %s changed under a concurrent transition", subjectID)
		}

		target, err := s.Entities().GetEntity(ctx, orgID, targetStatusID)
		if err != nil {
			return err
		}
		if target.EntityType != models.EntityTypeWorkflowStatus {
			return errcode.Newf(errcode.IllegalTransition, "entity %s is not a workflow status", targetStatusID)
		}
		legal, err := s.Relationships().EdgeExists(ctx, orgID, current.ToID, targetStatusID, models.RelTypeCanTransitionTo)
		if err != nil {
			return err
		}
		if !legal {
			return errcode.Newf(errcode.IllegalTransition,
				"no transition from %s to %s in the workflow template", current.ToID, targetStatusID)
		}

		if err := s.Relationships().DeactivateRelationship(ctx, orgID, current.ID); err != nil {
			return err
		}
		return s.Relationships().UpsertRelationship(ctx, &models.Relationship{
			OrganizationID:   orgID,
			FromID:           subjectID,
			ToID:             targetStatusID,
			RelationshipType: models.RelTypeHasStatus,
			SmartCode:        StatusRelSmartCode,
			IsActive:         true,
			Context: map[string]any{
				"reason":             opts.Reason,
				"actor_id":           opts.ActorID.String(),
				"previous_status_id": current.ToID.String(),
				"transitioned_at":    time.Now().UTC().Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("subject_id", subjectID.String()).
		Str("status_id", targetStatusID.String()).
		Msg("Workflow status transitioned")
	return e.runner.Entities().GetEntity(ctx, orgID, targetStatusID)
}

// Stage places one workflow_status entity in a template.
type Stage struct {
	StatusID  uuid.UUID
	Order     int
	IsInitial bool
	IsFinal   bool
}

// CreateTemplate creates a workflow_template entity and one has_stage edge
// per stage. The edge context carries the stage order and the initial/final
// markers. The template and its stages commit together.
func (e *Engine) CreateTemplate(ctx context.Context, orgID uuid.UUID, name string, stages []Stage) (*models.Entity, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}
	template := &models.Entity{
		ID:             uuid.Must(uuid.NewV7()),
		OrganizationID: orgID,
		EntityType:     models.EntityTypeWorkflowTemplate,
		EntityName:     name,
		SmartCode:      "HERA.WORKFLOW.TEMPLATE.ENTITY.STANDARD.V1",
		Status:         models.StatusActive,
	}
	err := e.runner.WithinTx(ctx, func(s store.Stores) error {
		if err := s.Entities().CreateEntity(ctx, template); err != nil {
			return err
		}
		for _, stage := range stages {
			status, err := s.Entities().GetEntity(ctx, orgID, stage.StatusID)
			if err != nil {
				return err
			}
			if status.EntityType != models.EntityTypeWorkflowStatus {
				return errcode.Newf(errcode.InvalidRequest, "entity %s is not a workflow status", stage.StatusID)
			}
			err = s.Relationships().UpsertRelationship(ctx, &models.Relationship{
				OrganizationID:   orgID,
				FromID:           template.ID,
				ToID:             stage.StatusID,
				RelationshipType: models.RelTypeHasStage,
				SmartCode:        StageRelSmartCode,
				IsActive:         true,
				Context: map[string]any{
					"order":      stage.Order,
					"is_initial": stage.IsInitial,
					"is_final":   stage.IsFinal,
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return template, nil
}

// validateStages checks the shape of a template before anything is written:
// exactly one stage carries is_initial, and orders do not repeat.
func validateStages(stages []Stage) error {
	initial := 0
	orders := make(map[int]bool, len(stages))
	for _, stage := range stages {
		if stage.IsInitial {
			initial++
		}
		if orders[stage.Order] {
			return errcode.Newf(errcode.InvalidRequest, "duplicate stage order %d", stage.Order)
		}
		orders[stage.Order] = true
	}
	if initial != 1 {
		return errcode.Newf(errcode.InvalidRequest, "template requires exactly one initial stage, got %d", initial)
	}
	return nil
}

// AllowTransition records a legal move between two workflow_status entities.
// Idempotent; re-allowing an existing pair refreshes the same edge.
func (e *Engine) AllowTransition(ctx context.Context, orgID, fromStatusID, toStatusID uuid.UUID) error {
	for _, id := range []uuid.UUID{fromStatusID, toStatusID} {
		status, err := e.runner.Entities().GetEntity(ctx, orgID, id)
		if err != nil {
			return err
		}
		if status.EntityType != models.EntityTypeWorkflowStatus {
			return errcode.Newf(errcode.InvalidRequest, "entity %s is not a workflow status", id)
		}
	}
	return e.runner.Relationships().UpsertRelationship(ctx, &models.Relationship{
		OrganizationID:   orgID,
		FromID:           fromStatusID,
		ToID:             toStatusID,
		RelationshipType: models.RelTypeCanTransitionTo,
		SmartCode:        TransitionRelSmartCode,
		IsActive:         true,
	})
}

func mapLockErr(err error) error {
	if errors.Is(err, store.ErrConcurrentTransition) {
		return errcode.New(errcode.ConcurrentTransition, "subject is locked by a concurrent transition")
	}
	return err
}
