// Package memory is an in-memory implementation of the store contract for
// development and unit tests. Transactions serialize on a single mutex and
// roll back by restoring a snapshot.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

// Store implements store.TxRunner in memory.
type Store struct {
	mu sync.Mutex
	d  *data
}

type data struct {
	orgs     map[uuid.UUID]*models.Organization
	entities map[uuid.UUID]*models.Entity
	fields   map[uuid.UUID]map[string]*models.DynamicField
	rels     map[uuid.UUID]*models.Relationship
	txns     map[uuid.UUID]*models.Transaction
	lines    map[uuid.UUID][]*models.TransactionLine
}

func newData() *data {
	return &data{
		orgs:     map[uuid.UUID]*models.Organization{},
		entities: map[uuid.UUID]*models.Entity{},
		fields:   map[uuid.UUID]map[string]*models.DynamicField{},
		rels:     map[uuid.UUID]*models.Relationship{},
		txns:     map[uuid.UUID]*models.Transaction{},
		lines:    map[uuid.UUID][]*models.TransactionLine{},
	}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) Organizations() store.OrganizationStore { return (*orgStore)(s) }
func (s *Store) Entities() store.EntityStore            { return (*entityStore)(s) }
func (s *Store) Relationships() store.RelationshipStore { return (*relStore)(s) }
func (s *Store) Transactions() store.TransactionStore   { return (*txnStore)(s) }

// WithinTx serializes the function against all other transactions and
// restores the pre-transaction snapshot when it fails.
func (s *Store) WithinTx(ctx context.Context, fn func(st store.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	// Run against an unlocked view so the fn can call store methods.
	tx := &Store{d: s.d}
	if err := fn(tx); err != nil {
		s.d = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// --- snapshot ---

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.orgs {
		c.orgs[k] = cloneOrg(v)
	}
	for k, v := range d.entities {
		c.entities[k] = cloneEntity(v)
	}
	for k, byName := range d.fields {
		m := map[string]*models.DynamicField{}
		for name, f := range byName {
			m[name] = cloneField(f)
		}
		c.fields[k] = m
	}
	for k, v := range d.rels {
		c.rels[k] = cloneRel(v)
	}
	for k, v := range d.txns {
		c.txns[k] = cloneTxn(v)
	}
	for k, v := range d.lines {
		lines := make([]*models.TransactionLine, len(v))
		for i, l := range v {
			lines[i] = cloneLine(l)
		}
		c.lines[k] = lines
	}
	return c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneOrg(o *models.Organization) *models.Organization {
	c := *o
	return &c
}

func cloneEntity(e *models.Entity) *models.Entity {
	c := *e
	c.Metadata = cloneMap(e.Metadata)
	c.DynamicFields = nil
	c.Relationships = nil
	return &c
}

func cloneField(f *models.DynamicField) *models.DynamicField {
	c := *f
	c.ValueJSON = cloneMap(f.ValueJSON)
	return &c
}

func cloneRel(r *models.Relationship) *models.Relationship {
	c := *r
	c.Context = cloneMap(r.Context)
	return &c
}

func cloneTxn(t *models.Transaction) *models.Transaction {
	c := *t
	c.Metadata = cloneMap(t.Metadata)
	c.Lines = nil
	return &c
}

func cloneLine(l *models.TransactionLine) *models.TransactionLine {
	c := *l
	c.LineData = cloneMap(l.LineData)
	return &c
}

// --- organizations ---

type orgStore Store

func (s *orgStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.d.orgs[org.ID]; ok {
		return store.ErrOrganizationAlreadyExists
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	org.UpdatedAt = org.CreatedAt
	st.d.orgs[org.ID] = cloneOrg(org)
	return nil
}

func (s *orgStore) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	org, ok := st.d.orgs[id]
	if !ok {
		return nil, store.ErrOrganizationNotFound
	}
	return cloneOrg(org), nil
}

func (s *orgStore) EnsurePlatformOrganization(ctx context.Context) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.d.orgs[models.PlatformOrgID]; ok {
		return nil
	}
	now := time.Now().UTC()
	st.d.orgs[models.PlatformOrgID] = &models.Organization{
		ID:        models.PlatformOrgID,
		Name:      "HERA Platform",
		Status:    models.OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}
