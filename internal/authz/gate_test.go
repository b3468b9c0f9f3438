package authz

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/hera-core/internal/cache"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store/memory"
)

type gateFixture struct {
	store  *memory.Store
	orgID  uuid.UUID
	member uuid.UUID
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	f := &gateFixture{
		store:  st,
		orgID:  uuid.Must(uuid.NewV7()),
		member: uuid.Must(uuid.NewV7()),
	}
	require.NoError(t, st.Organizations().EnsurePlatformOrganization(ctx))
	require.NoError(t, st.Organizations().CreateOrganization(ctx, &models.Organization{
		ID:     f.orgID,
		Name:   "Tenant",
		Status: models.OrgStatusActive,
	}))
	require.NoError(t, st.Entities().CreateEntity(ctx, &models.Entity{
		ID:             f.member,
		OrganizationID: models.PlatformOrgID,
		EntityType:     "user",
		EntityName:     "Member",
		SmartCode:      "HERA.IAM.USER.ENTITY.STANDARD.V1",
	}))
	require.NoError(t, st.Relationships().UpsertRelationship(ctx, &models.Relationship{
		OrganizationID:   f.orgID,
		FromID:           f.member,
		ToID:             f.orgID,
		RelationshipType: models.RelTypeUserMemberOfOrg,
		SmartCode:        "HERA.IAM.MEMBERSHIP.ORG.REL.V1",
		IsActive:         true,
	}))
	return f
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestAuthorize(t *testing.T) {
	f := newGateFixture(t)
	gate := New(f.store)
	ctx := context.Background()

	stranger := uuid.Must(uuid.NewV7())
	require.NoError(t, f.store.Entities().CreateEntity(ctx, &models.Entity{
		ID:             stranger,
		OrganizationID: models.PlatformOrgID,
		EntityType:     "user",
		EntityName:     "Stranger",
		SmartCode:      "HERA.IAM.USER.ENTITY.STANDARD.V1",
	}))

	tests := []struct {
		name  string
		check Check
		code  string
	}{
		{
			name:  "member allowed",
			check: Check{ActorID: ptr(f.member), OrgID: ptr(f.orgID), Class: ClassBusiness},
		},
		{
			name:  "missing actor",
			check: Check{OrgID: ptr(f.orgID), Class: ClassBusiness},
			code:  errcode.ActorRequired,
		},
		{
			name:  "null actor",
			check: Check{ActorID: ptr(uuid.Nil), OrgID: ptr(f.orgID), Class: ClassBusiness},
			code:  errcode.InvalidActorNullUuid,
		},
		{
			name:  "missing org",
			check: Check{ActorID: ptr(f.member), Class: ClassBusiness},
			code:  errcode.OrganizationRequired,
		},
		{
			name:  "unknown org",
			check: Check{ActorID: ptr(f.member), OrgID: ptr(uuid.Must(uuid.NewV7())), Class: ClassBusiness},
			code:  errcode.OrganizationEntityNotFound,
		},
		{
			name:  "unknown actor",
			check: Check{ActorID: ptr(uuid.Must(uuid.NewV7())), OrgID: ptr(f.orgID), Class: ClassBusiness},
			code:  errcode.ActorEntityNotFound,
		},
		{
			name:  "resolves but not a member",
			check: Check{ActorID: ptr(stranger), OrgID: ptr(f.orgID), Class: ClassBusiness},
			code:  errcode.ActorNotMember,
		},
		{
			name:  "business in platform org",
			check: Check{ActorID: ptr(f.member), OrgID: ptr(models.PlatformOrgID), Class: ClassBusiness},
			code:  errcode.BusinessOperationsNotAllowedInPlatformOrg,
		},
		{
			name:  "system in platform org",
			check: Check{ActorID: ptr(f.member), OrgID: ptr(models.PlatformOrgID), Class: ClassSystem},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(context.Background(), tt.check)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, errcode.CodeOf(err))
		})
	}
}

// A business call against the platform org fails the same way even when the
// actor id is garbage, because the platform check runs before actor
// resolution.
func TestPlatformRejectionBeatsActorChecks(t *testing.T) {
	f := newGateFixture(t)
	gate := New(f.store)

	err := gate.Authorize(context.Background(), Check{
		ActorID: ptr(uuid.Must(uuid.NewV7())),
		OrgID:   ptr(models.PlatformOrgID),
		Class:   ClassBusiness,
	})
	assert.Equal(t, errcode.BusinessOperationsNotAllowedInPlatformOrg, errcode.CodeOf(err))
}

// A membership edge that lives in the organization's row space but points at
// some other record does not grant access.
func TestMembershipEdgeMustTargetOrganization(t *testing.T) {
	f := newGateFixture(t)
	gate := New(f.store)
	ctx := context.Background()

	drifter := uuid.Must(uuid.NewV7())
	require.NoError(t, f.store.Entities().CreateEntity(ctx, &models.Entity{
		ID:             drifter,
		OrganizationID: models.PlatformOrgID,
		EntityType:     "user",
		EntityName:     "Drifter",
		SmartCode:      "HERA.IAM.USER.ENTITY.STANDARD.V1",
	}))
	require.NoError(t, f.store.Relationships().UpsertRelationship(ctx, &models.Relationship{
		OrganizationID:   f.orgID,
		FromID:           drifter,
		ToID:             uuid.Must(uuid.NewV7()),
		RelationshipType: models.RelTypeUserMemberOfOrg,
		SmartCode:        "HERA.IAM.MEMBERSHIP.ORG.REL.V1",
		IsActive:         true,
	}))

	err := gate.Authorize(ctx, Check{ActorID: ptr(drifter), OrgID: ptr(f.orgID), Class: ClassBusiness})
	assert.Equal(t, errcode.ActorNotMember, errcode.CodeOf(err))
}

func TestCheckSameOrg(t *testing.T) {
	a := uuid.Must(uuid.NewV7())
	b := uuid.Must(uuid.NewV7())

	assert.NoError(t, CheckSameOrg(a, a, "reference"))
	err := CheckSameOrg(a, b, "reference")
	assert.Equal(t, errcode.CrossOrgReferenceDenied, errcode.CodeOf(err))
}

func TestAuthorizeCachesPositiveLookups(t *testing.T) {
	f := newGateFixture(t)
	c := cache.NewMemory()
	gate := New(f.store, WithCache(c, time.Minute))
	ctx := context.Background()

	check := Check{ActorID: ptr(f.member), OrgID: ptr(f.orgID), Class: ClassBusiness}
	require.NoError(t, gate.Authorize(ctx, check))

	// The membership lookup is now served from cache, so deactivating the
	// edge does not bite until the entry expires.
	v, err := c.Get(ctx, "hera:member:"+f.orgID.String()+":"+f.member.String())
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	require.NoError(t, gate.Authorize(ctx, check))
}
