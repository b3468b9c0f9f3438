package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/authz"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/telemetry"
	"github.com/heraerp/hera-core/internal/workflow"
)

// TransitionRequest asks for one workflow status transition.
type TransitionRequest struct {
	ActorUserID    *uuid.UUID `json:"actor_user_id,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	SubjectID      uuid.UUID  `json:"subject_id"`
	TargetStatusID uuid.UUID  `json:"target_status_id"`
	Reason         string     `json:"reason,omitempty"`
}

// Transition runs the security gate and then the status swap. A lost race
// surfaces as a retryable ConcurrentTransition; the engine does not retry
// it on the caller's behalf.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) Response {
	m := telemetry.GetMetrics()

	if err := e.gate.Authorize(ctx, authz.Check{
		ActorID: req.ActorUserID,
		OrgID:   req.OrganizationID,
		Class:   authz.ClassBusiness,
	}); err != nil {
		m.AuthzDeniedTotal.Add(ctx, 1)
		return fail(asCoded(err))
	}
	if req.SubjectID == uuid.Nil || req.TargetStatusID == uuid.Nil {
		return fail(errcode.New(errcode.MissingRequiredField, "subject_id and target_status_id are required"))
	}

	status, err := e.workflow.TransitionStatus(ctx, *req.OrganizationID, req.SubjectID, req.TargetStatusID, workflow.TransitionOptions{
		ActorID: *req.ActorUserID,
		Reason:  req.Reason,
	})
	if err != nil {
		if errcode.CodeOf(err) == errcode.ConcurrentTransition {
			m.TransitionConflictsTotal.Add(ctx, 1)
		}
		return fail(asCoded(err))
	}
	m.TransitionsTotal.Add(ctx, 1)
	return ok(status)
}
