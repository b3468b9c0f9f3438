package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

type relStore Store

func (s *relStore) UpsertRelationship(ctx context.Context, r *models.Relationship) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.d.orgs[r.OrganizationID]; !ok {
		return store.ErrOrganizationNotFound
	}
	if models.IsHierarchical(r.RelationshipType) && st.wouldCycle(r) {
		return store.ErrRelationshipCycle
	}
	now := time.Now().UTC()
	for _, existing := range st.d.rels {
		if existing.OrganizationID == r.OrganizationID &&
			existing.FromID == r.FromID &&
			existing.ToID == r.ToID &&
			existing.RelationshipType == r.RelationshipType {
			existing.SmartCode = r.SmartCode
			existing.Context = cloneMap(r.Context)
			existing.IsActive = r.IsActive
			existing.Strength = r.Strength
			existing.UpdatedAt = now
			*r = *cloneRel(existing)
			return nil
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.Must(uuid.NewV7())
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	st.d.rels[r.ID] = cloneRel(r)
	return nil
}

// wouldCycle walks active same-type edges from r.ToID downward; reaching
// r.FromID means the new edge closes a cycle.
func (st *Store) wouldCycle(r *models.Relationship) bool {
	seen := map[uuid.UUID]bool{}
	frontier := []uuid.UUID{r.ToID}
	for len(frontier) > 0 {
		node := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if node == r.FromID {
			return true
		}
		if seen[node] {
			continue
		}
		seen[node] = true
		for _, edge := range st.d.rels {
			if edge.OrganizationID == r.OrganizationID &&
				edge.RelationshipType == r.RelationshipType &&
				edge.IsActive &&
				edge.FromID == node {
				frontier = append(frontier, edge.ToID)
			}
		}
	}
	return false
}

func (s *relStore) GetRelationship(ctx context.Context, orgID, id uuid.UUID) (*models.Relationship, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	r, ok := st.d.rels[id]
	if !ok || r.OrganizationID != orgID {
		return nil, store.ErrRelationshipNotFound
	}
	return cloneRel(r), nil
}

func (s *relStore) ListRelationships(ctx context.Context, orgID uuid.UUID, f store.RelationshipFilter) ([]*models.Relationship, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*models.Relationship
	for _, r := range st.d.rels {
		if r.OrganizationID != orgID {
			continue
		}
		if f.FromID != uuid.Nil && r.FromID != f.FromID {
			continue
		}
		if f.ToID != uuid.Nil && r.ToID != f.ToID {
			continue
		}
		if f.RelationshipType != "" && r.RelationshipType != f.RelationshipType {
			continue
		}
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		out = append(out, cloneRel(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *relStore) DeactivateRelationship(ctx context.Context, orgID, id uuid.UUID) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	r, ok := st.d.rels[id]
	if !ok || r.OrganizationID != orgID {
		return store.ErrRelationshipNotFound
	}
	r.IsActive = false
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *relStore) ActiveByFromAndType(ctx context.Context, orgID, fromID uuid.UUID, relType string) (*models.Relationship, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, r := range st.d.rels {
		if r.OrganizationID == orgID && r.FromID == fromID && r.RelationshipType == relType && r.IsActive {
			return cloneRel(r), nil
		}
	}
	return nil, store.ErrRelationshipNotFound
}

func (s *relStore) EdgeExists(ctx context.Context, orgID, fromID, toID uuid.UUID, relType string) (bool, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, r := range st.d.rels {
		if r.OrganizationID == orgID && r.FromID == fromID && r.ToID == toID && r.RelationshipType == relType && r.IsActive {
			return true, nil
		}
	}
	return false, nil
}

// LockSubject only verifies the subject exists. The memory store serializes
// whole transactions, so stale-read detection happens in the workflow engine
// by re-reading the active status inside the transaction.
func (s *relStore) LockSubject(ctx context.Context, orgID, subjectID uuid.UUID) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	if e, ok := st.d.entities[subjectID]; ok && e.OrganizationID == orgID {
		return nil
	}
	if t, ok := st.d.txns[subjectID]; ok && t.OrganizationID == orgID {
		return nil
	}
	return store.ErrEntityNotFound
}
