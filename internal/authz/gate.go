// Package authz implements the actor/organization security gate invoked
// before every read or mutation.
package authz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/heraerp/hera-core/internal/cache"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

// Class partitions operations for the platform-org restriction: system
// operations (catalog and entity reads of platform-scoped types) are allowed
// against the platform organization, business operations are not.
type Class string

const (
	ClassSystem   Class = "system"
	ClassBusiness Class = "business"
)

// Check is one authorization request. Nil pointers mean the field was absent
// from the call, which is distinct from carrying the zero UUID.
type Check struct {
	ActorID *uuid.UUID
	OrgID   *uuid.UUID
	Class   Class
}

// Gate validates actors and tenant scope. Stateless; the optional cache only
// short-circuits repeated positive lookups.
type Gate struct {
	stores   store.Stores
	cache    cache.Cache
	cacheTTL time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithCache enables read-through caching of org-existence and membership
// lookups. Only positive results are cached.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(g *Gate) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// New creates a security gate over the given stores.
func New(stores store.Stores, opts ...Option) *Gate {
	g := &Gate{stores: stores, cacheTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize runs the ordered identity and tenant checks; the first failure
// wins. Platform-org business rejection is checked before actor resolution so
// that business calls against the platform org fail the same way regardless
// of actor validity.
func (g *Gate) Authorize(ctx context.Context, c Check) error {
	if err := g.authorize(ctx, c); err != nil {
		log.Info().
			Str("code", errcode.CodeOf(err)).
			Str("class", string(c.Class)).
			Msg("Authorization denied")
		return err
	}
	log.Debug().
		Str("actor_id", c.ActorID.String()).
		Str("organization_id", c.OrgID.String()).
		Str("class", string(c.Class)).
		Msg("Authorization granted")
	return nil
}

func (g *Gate) authorize(ctx context.Context, c Check) error {
	if c.ActorID == nil {
		return errcode.New(errcode.ActorRequired, "actor_user_id is required")
	}
	if *c.ActorID == uuid.Nil {
		return errcode.New(errcode.InvalidActorNullUuid, "actor_user_id must not be the nil UUID")
	}
	if c.OrgID == nil {
		return errcode.New(errcode.OrganizationRequired, "organization_id is required")
	}
	if err := g.orgExists(ctx, *c.OrgID); err != nil {
		return err
	}
	platform := *c.OrgID == models.PlatformOrgID
	if platform && c.Class == ClassBusiness {
		return errcode.New(errcode.BusinessOperationsNotAllowedInPlatformOrg,
			"business operations are not allowed in the platform organization")
	}
	if err := g.actorResolves(ctx, *c.ActorID, *c.OrgID); err != nil {
		return err
	}
	if !platform {
		if err := g.actorIsMember(ctx, *c.ActorID, *c.OrgID); err != nil {
			return err
		}
	}
	return nil
}

// CheckSameOrg rejects a payload reference into a different organization.
func CheckSameOrg(orgID, refOrgID uuid.UUID, what string) error {
	if orgID != refOrgID {
		return errcode.Newf(errcode.CrossOrgReferenceDenied,
			"%s belongs to a different organization", what)
	}
	return nil
}

func (g *Gate) orgExists(ctx context.Context, orgID uuid.UUID) error {
	key := "hera:org:" + orgID.String()
	if g.cachedPositive(ctx, key) {
		return nil
	}
	_, err := g.stores.Organizations().GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return errcode.Newf(errcode.OrganizationEntityNotFound,
				"organization %s does not exist", orgID)
		}
		return err
	}
	g.cachePositive(ctx, key)
	return nil
}

// actorResolves looks the actor entity up in the target organization first,
// then in the platform organization where user entities are provisioned.
func (g *Gate) actorResolves(ctx context.Context, actorID, orgID uuid.UUID) error {
	key := "hera:actor:" + actorID.String()
	if g.cachedPositive(ctx, key) {
		return nil
	}
	_, err := g.stores.Entities().GetEntity(ctx, orgID, actorID)
	if errors.Is(err, store.ErrEntityNotFound) && orgID != models.PlatformOrgID {
		_, err = g.stores.Entities().GetEntity(ctx, models.PlatformOrgID, actorID)
	}
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return errcode.Newf(errcode.ActorEntityNotFound,
				"actor %s does not resolve to an entity", actorID)
		}
		return err
	}
	g.cachePositive(ctx, key)
	return nil
}

func (g *Gate) actorIsMember(ctx context.Context, actorID, orgID uuid.UUID) error {
	key := "hera:member:" + orgID.String() + ":" + actorID.String()
	if g.cachedPositive(ctx, key) {
		return nil
	}
	rel, err := g.stores.Relationships().ActiveByFromAndType(ctx, orgID, actorID, models.RelTypeUserMemberOfOrg)
	if err != nil {
		if errors.Is(err, store.ErrRelationshipNotFound) {
			return errcode.Newf(errcode.ActorNotMember,
				"actor %s is not a member of organization %s", actorID, orgID)
		}
		return err
	}
	// The edge must point at the organization itself, not some other
	// record living in its row space.
	if rel.ToID != orgID {
		return errcode.Newf(errcode.ActorNotMember,
			"actor %s is not a member of organization %s", actorID, orgID)
	}
	g.cachePositive(ctx, key)
	return nil
}

func (g *Gate) cachedPositive(ctx context.Context, key string) bool {
	if g.cache == nil {
		return false
	}
	v, err := g.cache.Get(ctx, key)
	return err == nil && v == "1"
}

func (g *Gate) cachePositive(ctx context.Context, key string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, "1", g.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache authorization lookup")
	}
}
