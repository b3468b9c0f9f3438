package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

type entityStore Store

func (s *entityStore) CreateEntity(ctx context.Context, e *models.Entity) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.d.orgs[e.OrganizationID]; !ok {
		return store.ErrOrganizationNotFound
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	if e.Status == "" {
		e.Status = models.StatusActive
	}
	st.d.entities[e.ID] = cloneEntity(e)
	return nil
}

func (s *entityStore) GetEntity(ctx context.Context, orgID, id uuid.UUID) (*models.Entity, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.d.entities[id]
	if !ok || e.OrganizationID != orgID {
		return nil, store.ErrEntityNotFound
	}
	return cloneEntity(e), nil
}

func (s *entityStore) ListEntities(ctx context.Context, orgID uuid.UUID, f store.EntityFilter) ([]*models.Entity, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*models.Entity
	for _, e := range st.d.entities {
		if e.OrganizationID != orgID {
			continue
		}
		if f.ID != uuid.Nil && e.ID != f.ID {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityCode != "" && !strings.EqualFold(e.EntityCode, f.EntityCode) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *entityStore) UpdateEntity(ctx context.Context, e *models.Entity) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	existing, ok := st.d.entities[e.ID]
	if !ok || existing.OrganizationID != e.OrganizationID {
		return store.ErrEntityNotFound
	}
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	st.d.entities[e.ID] = cloneEntity(e)
	return nil
}

func (s *entityStore) SetEntityStatus(ctx context.Context, orgID, id uuid.UUID, status string) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.d.entities[id]
	if !ok || e.OrganizationID != orgID {
		return store.ErrEntityNotFound
	}
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *entityStore) HardDeleteEntity(ctx context.Context, orgID, id uuid.UUID) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.d.entities[id]
	if !ok || e.OrganizationID != orgID {
		return store.ErrEntityNotFound
	}
	delete(st.d.entities, id)
	delete(st.d.fields, id)
	// Edges are audit history: deactivate rather than remove.
	for _, r := range st.d.rels {
		if r.FromID == id || r.ToID == id {
			r.IsActive = false
			r.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *entityStore) UpsertDynamicField(ctx context.Context, f *models.DynamicField) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.d.entities[f.EntityID]
	if !ok || e.OrganizationID != f.OrganizationID {
		return store.ErrEntityNotFound
	}
	byName, ok := st.d.fields[f.EntityID]
	if !ok {
		byName = map[string]*models.DynamicField{}
		st.d.fields[f.EntityID] = byName
	}
	now := time.Now().UTC()
	if existing, ok := byName[f.FieldName]; ok {
		f.ID = existing.ID
		f.CreatedAt = existing.CreatedAt
	} else {
		if f.ID == uuid.Nil {
			f.ID = uuid.Must(uuid.NewV7())
		}
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	byName[f.FieldName] = cloneField(f)
	return nil
}

func (s *entityStore) ListDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]*models.DynamicField, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.d.entities[entityID]
	if !ok || e.OrganizationID != orgID {
		return nil, store.ErrEntityNotFound
	}
	var out []*models.DynamicField
	for _, f := range st.d.fields[entityID] {
		out = append(out, cloneField(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
