package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

type txnStore Store

func (s *txnStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.d.orgs[t.OrganizationID]; !ok {
		return store.ErrOrganizationNotFound
	}
	for _, existing := range st.d.txns {
		if existing.OrganizationID == t.OrganizationID &&
			strings.EqualFold(existing.TransactionCode, t.TransactionCode) {
			return store.ErrDuplicateTransactionCode
		}
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	if t.Status == "" {
		t.Status = models.TxnStatusPending
	}
	if t.TransactionDate.IsZero() {
		t.TransactionDate = now
	}
	lines := t.Lines
	for i, line := range lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.Must(uuid.NewV7())
		}
		line.OrganizationID = t.OrganizationID
		line.TransactionID = t.ID
		line.LineNumber = i + 1
		line.CreatedAt = now
	}
	st.d.txns[t.ID] = cloneTxn(t)
	stored := make([]*models.TransactionLine, len(lines))
	for i, line := range lines {
		stored[i] = cloneLine(line)
	}
	st.d.lines[t.ID] = stored
	return nil
}

func (s *txnStore) GetTransaction(ctx context.Context, orgID, id uuid.UUID) (*models.Transaction, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.d.txns[id]
	if !ok || t.OrganizationID != orgID {
		return nil, store.ErrTransactionNotFound
	}
	return cloneTxn(t), nil
}

func (s *txnStore) ListTransactions(ctx context.Context, orgID uuid.UUID, f store.TransactionFilter) ([]*models.Transaction, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*models.Transaction
	for _, t := range st.d.txns {
		if t.OrganizationID != orgID {
			continue
		}
		if f.ID != uuid.Nil && t.ID != f.ID {
			continue
		}
		if f.TransactionType != "" && t.TransactionType != f.TransactionType {
			continue
		}
		if f.TransactionCode != "" && !strings.EqualFold(t.TransactionCode, f.TransactionCode) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, cloneTxn(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *txnStore) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	existing, ok := st.d.txns[t.ID]
	if !ok || existing.OrganizationID != t.OrganizationID {
		return store.ErrTransactionNotFound
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	st.d.txns[t.ID] = cloneTxn(t)
	return nil
}

func (s *txnStore) SetTransactionStatus(ctx context.Context, orgID, id uuid.UUID, status string) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.d.txns[id]
	if !ok || t.OrganizationID != orgID {
		return store.ErrTransactionNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *txnStore) HardDeleteTransaction(ctx context.Context, orgID, id uuid.UUID) error {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.d.txns[id]
	if !ok || t.OrganizationID != orgID {
		return store.ErrTransactionNotFound
	}
	delete(st.d.txns, id)
	delete(st.d.lines, id)
	for _, r := range st.d.rels {
		if r.FromID == id || r.ToID == id {
			r.IsActive = false
			r.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *txnStore) ListLines(ctx context.Context, orgID, transactionID uuid.UUID) ([]*models.TransactionLine, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.d.txns[transactionID]
	if !ok || t.OrganizationID != orgID {
		return nil, store.ErrTransactionNotFound
	}
	lines := st.d.lines[transactionID]
	out := make([]*models.TransactionLine, len(lines))
	for i, l := range lines {
		out[i] = cloneLine(l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, nil
}

func (s *txnStore) ApproveTransaction(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.d.txns[id]
	if !ok || t.OrganizationID != orgID {
		return false, store.ErrTransactionNotFound
	}
	if t.Status == models.TxnStatusApproved {
		return false, nil
	}
	if t.Status != models.TxnStatusPending {
		return false, fmt.Errorf("%w: status is %q", store.ErrTransactionNotPending, t.Status)
	}
	t.Status = models.TxnStatusApproved
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}
