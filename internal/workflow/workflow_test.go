package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
	"github.com/heraerp/hera-core/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	orgID uuid.UUID
	actor uuid.UUID

	scheduled uuid.UUID
	checkedIn uuid.UUID
	completed uuid.UUID

	appointment uuid.UUID
}

// newFixture builds an appointment workflow:
// SCHEDULED -> CHECKED_IN -> COMPLETED, with the appointment on SCHEDULED.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	f := &fixture{
		store: st,
		orgID: uuid.Must(uuid.NewV7()),
		actor: uuid.Must(uuid.NewV7()),
	}
	require.NoError(t, st.Organizations().CreateOrganization(ctx, &models.Organization{
		ID:     f.orgID,
		Name:   "Hair Talkz Salon",
		Status: models.OrgStatusActive,
	}))

	status := func(name string) uuid.UUID {
		id := uuid.Must(uuid.NewV7())
		require.NoError(t, st.Entities().CreateEntity(ctx, &models.Entity{
			ID:             id,
			OrganizationID: f.orgID,
			EntityType:     models.EntityTypeWorkflowStatus,
			EntityName:     name,
			EntityCode:     name,
			SmartCode:      "HERA.WORKFLOW.STATUS.ENTITY.STANDARD.V1",
		}))
		return id
	}
	f.scheduled = status("SCHEDULED")
	f.checkedIn = status("CHECKED_IN")
	f.completed = status("COMPLETED")

	edge := func(from, to uuid.UUID) {
		require.NoError(t, st.Relationships().UpsertRelationship(ctx, &models.Relationship{
			OrganizationID:   f.orgID,
			FromID:           from,
			ToID:             to,
			RelationshipType: models.RelTypeCanTransitionTo,
			SmartCode:        TransitionRelSmartCode,
			IsActive:         true,
		}))
	}
	edge(f.scheduled, f.checkedIn)
	edge(f.checkedIn, f.completed)

	f.appointment = uuid.Must(uuid.NewV7())
	require.NoError(t, st.Entities().CreateEntity(ctx, &models.Entity{
		ID:             f.appointment,
		OrganizationID: f.orgID,
		EntityType:     "appointment",
		EntityName:     "Cut and color",
		SmartCode:      "HERA.SALON.APPOINTMENT.ENTITY.STANDARD.V1",
	}))

	eng := New(st)
	require.NoError(t, st.WithinTx(ctx, func(s store.Stores) error {
		return eng.AssignInitialStatus(ctx, s, f.orgID, f.appointment, f.scheduled, f.actor)
	}))
	return f
}

func (f *fixture) activeStatusEdges(t *testing.T) []*models.Relationship {
	t.Helper()
	rels, err := f.store.Relationships().ListRelationships(context.Background(), f.orgID, store.RelationshipFilter{
		FromID:           f.appointment,
		RelationshipType: models.RelTypeHasStatus,
		ActiveOnly:       true,
	})
	require.NoError(t, err)
	return rels
}

func TestCurrentStatus(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)

	status, err := eng.CurrentStatus(context.Background(), f.orgID, f.appointment)
	require.NoError(t, err)
	require.Equal(t, f.scheduled, status.ID)
	require.Equal(t, "SCHEDULED", status.EntityName)
}

func TestCurrentStatusNone(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)

	orphan := uuid.Must(uuid.NewV7())
	require.NoError(t, f.store.Entities().CreateEntity(context.Background(), &models.Entity{
		ID:             orphan,
		OrganizationID: f.orgID,
		EntityType:     "appointment",
		EntityName:     "Walk-in",
		SmartCode:      "HERA.SALON.APPOINTMENT.ENTITY.STANDARD.V1",
	}))

	_, err := eng.CurrentStatus(context.Background(), f.orgID, orphan)
	require.Equal(t, errcode.NoCurrentStatus, errcode.CodeOf(err))
}

func TestTransitionStatus(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)

	status, err := eng.TransitionStatus(context.Background(), f.orgID, f.appointment, f.checkedIn, TransitionOptions{
		ActorID: f.actor,
		Reason:  "client arrived",
	})
	require.NoError(t, err)
	require.Equal(t, f.checkedIn, status.ID)

	// Exactly one active has_status edge survives, pointing at the target,
	// with the audit facts on its context.
	active := f.activeStatusEdges(t)
	require.Len(t, active, 1)
	require.Equal(t, f.checkedIn, active[0].ToID)
	require.Equal(t, "client arrived", active[0].Context["reason"])
	require.Equal(t, f.scheduled.String(), active[0].Context["previous_status_id"])

	// The old edge is kept for history, deactivated.
	all, err := f.store.Relationships().ListRelationships(context.Background(), f.orgID, store.RelationshipFilter{
		FromID:           f.appointment,
		RelationshipType: models.RelTypeHasStatus,
	})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestTransitionStatusIllegal(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	_, err := eng.TransitionStatus(ctx, f.orgID, f.appointment, f.checkedIn, TransitionOptions{ActorID: f.actor})
	require.NoError(t, err)
	_, err = eng.TransitionStatus(ctx, f.orgID, f.appointment, f.completed, TransitionOptions{ActorID: f.actor})
	require.NoError(t, err)

	// No can_transition_to edge from COMPLETED back to SCHEDULED.
	_, err = eng.TransitionStatus(ctx, f.orgID, f.appointment, f.scheduled, TransitionOptions{ActorID: f.actor})
	require.Equal(t, errcode.IllegalTransition, errcode.CodeOf(err))

	// The failed transition left the current status untouched.
	status, err := eng.CurrentStatus(ctx, f.orgID, f.appointment)
	require.NoError(t, err)
	require.Equal(t, f.completed, status.ID)
	require.Len(t, f.activeStatusEdges(t), 1)
}

func TestTransitionStatusSkipsStage(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)

	// SCHEDULED -> COMPLETED skips CHECKED_IN and has no edge.
	_, err := eng.TransitionStatus(context.Background(), f.orgID, f.appointment, f.completed, TransitionOptions{ActorID: f.actor})
	require.Equal(t, errcode.IllegalTransition, errcode.CodeOf(err))
}

func TestTransitionStatusNotAStatusEntity(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)

	_, err := eng.TransitionStatus(context.Background(), f.orgID, f.appointment, f.appointment, TransitionOptions{ActorID: f.actor})
	require.Equal(t, errcode.IllegalTransition, errcode.CodeOf(err))
}

func TestAssignInitialStatusSwapsExisting(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	// Re-assigning an initial status replaces the active edge instead of
	// stacking a second one.
	require.NoError(t, f.store.WithinTx(ctx, func(s store.Stores) error {
		return eng.AssignInitialStatus(ctx, s, f.orgID, f.appointment, f.checkedIn, f.actor)
	}))

	active := f.activeStatusEdges(t)
	require.Len(t, active, 1)
	require.Equal(t, f.checkedIn, active[0].ToID)
}

func TestAssignInitialStatusRejectsNonStatus(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(s store.Stores) error {
		return eng.AssignInitialStatus(ctx, s, f.orgID, f.appointment, f.appointment, f.actor)
	})
	require.Equal(t, errcode.IllegalTransition, errcode.CodeOf(err))
}

func TestCreateTemplate(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	template, err := eng.CreateTemplate(ctx, f.orgID, "Appointment lifecycle", []Stage{
		{StatusID: f.scheduled, Order: 1, IsInitial: true},
		{StatusID: f.checkedIn, Order: 2},
		{StatusID: f.completed, Order: 3, IsFinal: true},
	})
	require.NoError(t, err)
	require.Equal(t, models.EntityTypeWorkflowTemplate, template.EntityType)

	stages, err := f.store.Relationships().ListRelationships(ctx, f.orgID, store.RelationshipFilter{
		FromID:           template.ID,
		RelationshipType: models.RelTypeHasStage,
		ActiveOnly:       true,
	})
	require.NoError(t, err)
	require.Len(t, stages, 3)
	for _, stage := range stages {
		if stage.ToID == f.scheduled {
			require.Equal(t, true, stage.Context["is_initial"])
		}
	}
}

func TestCreateTemplateRollsBackOnBadStage(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	// The appointment is not a workflow_status, so the whole template
	// creation rolls back, entity included.
	_, err := eng.CreateTemplate(ctx, f.orgID, "Broken", []Stage{
		{StatusID: f.scheduled, Order: 1, IsInitial: true},
		{StatusID: f.appointment, Order: 2},
	})
	require.Error(t, err)

	templates, err := f.store.Entities().ListEntities(ctx, f.orgID, store.EntityFilter{
		EntityType: models.EntityTypeWorkflowTemplate,
	})
	require.NoError(t, err)
	require.Empty(t, templates)
}

func TestCreateTemplateRejectsBadStageShape(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	tests := []struct {
		name   string
		stages []Stage
	}{
		{
			name: "no initial stage",
			stages: []Stage{
				{StatusID: f.scheduled, Order: 1},
				{StatusID: f.checkedIn, Order: 2},
			},
		},
		{
			name: "two initial stages",
			stages: []Stage{
				{StatusID: f.scheduled, Order: 1, IsInitial: true},
				{StatusID: f.checkedIn, Order: 2, IsInitial: true},
			},
		},
		{
			name: "duplicate order",
			stages: []Stage{
				{StatusID: f.scheduled, Order: 1, IsInitial: true},
				{StatusID: f.checkedIn, Order: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.CreateTemplate(ctx, f.orgID, "Malformed", tt.stages)
			require.Equal(t, errcode.InvalidRequest, errcode.CodeOf(err))
		})
	}

	// Validation fires before the template entity is written.
	templates, err := f.store.Entities().ListEntities(ctx, f.orgID, store.EntityFilter{
		EntityType: models.EntityTypeWorkflowTemplate,
	})
	require.NoError(t, err)
	require.Empty(t, templates)
}

func TestAllowTransition(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store)
	ctx := context.Background()

	// COMPLETED -> SCHEDULED is not legal until allowed.
	require.NoError(t, eng.AllowTransition(ctx, f.orgID, f.completed, f.scheduled))

	_, err := eng.TransitionStatus(ctx, f.orgID, f.appointment, f.checkedIn, TransitionOptions{ActorID: f.actor})
	require.NoError(t, err)
	_, err = eng.TransitionStatus(ctx, f.orgID, f.appointment, f.completed, TransitionOptions{ActorID: f.actor})
	require.NoError(t, err)
	status, err := eng.TransitionStatus(ctx, f.orgID, f.appointment, f.scheduled, TransitionOptions{ActorID: f.actor})
	require.NoError(t, err)
	require.Equal(t, f.scheduled, status.ID)
}

// raceRunner delays nothing but fires a hook right before the first
// transaction runs, simulating a competing writer that slips in between the
// engine's pre-read and its lock.
type raceRunner struct {
	*memory.Store
	before func()
}

func (r *raceRunner) WithinTx(ctx context.Context, fn func(s store.Stores) error) error {
	if r.before != nil {
		hook := r.before
		r.before = nil
		hook()
	}
	return r.Store.WithinTx(ctx, fn)
}

func TestTransitionStatusConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	runner := &raceRunner{Store: f.store}
	runner.before = func() {
		// A competing transition commits first.
		_, err := New(f.store).TransitionStatus(ctx, f.orgID, f.appointment, f.checkedIn, TransitionOptions{ActorID: f.actor})
		require.NoError(t, err)
	}

	eng := New(runner)
	_, err := eng.TransitionStatus(ctx, f.orgID, f.appointment, f.checkedIn, TransitionOptions{ActorID: f.actor})
	require.Equal(t, errcode.ConcurrentTransition, errcode.CodeOf(err))

	// The winner's edge stands, single and active.
	active := f.activeStatusEdges(t)
	require.Len(t, active, 1)
	require.Equal(t, f.checkedIn, active[0].ToID)
}
