package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

type txnStore Store

const txnColumns = `
	id, organization_id, transaction_type, transaction_code, smart_code,
	source_entity_id, target_entity_id, total_amount, transaction_date,
	status, metadata, created_at, updated_at
`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var source, target *uuid.UUID
	err := row.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.TransactionType,
		&t.TransactionCode,
		&t.SmartCode,
		&source,
		&target,
		&t.TotalAmount,
		&t.TransactionDate,
		&t.Status,
		&t.Metadata,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if source != nil {
		t.SourceEntityID = *source
	}
	if target != nil {
		t.TargetEntityID = *target
	}
	return &t, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (s *txnStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	st := (*Store)(s)

	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV7())
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

	query := `
		INSERT INTO universal_transactions (
			id, organization_id, transaction_type, transaction_code, smart_code,
			source_entity_id, target_entity_id, total_amount, transaction_date,
			status, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := st.db.Exec(ctx, query,
		t.ID,
		t.OrganizationID,
		t.TransactionType,
		t.TransactionCode,
		t.SmartCode,
		nullableUUID(t.SourceEntityID),
		nullableUUID(t.TargetEntityID),
		t.TotalAmount,
		t.TransactionDate,
		t.Status,
		t.Metadata,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", mapPostgresError(err))
	}

	lineQuery := `
		INSERT INTO universal_transaction_lines (
			id, organization_id, transaction_id, line_number, line_type,
			quantity, unit_amount, line_amount, smart_code, line_data, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	for i, line := range t.Lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.Must(uuid.NewV7())
		}
		line.OrganizationID = t.OrganizationID
		line.TransactionID = t.ID
		line.LineNumber = i + 1
		line.CreatedAt = now

		_, err := st.db.Exec(ctx, lineQuery,
			line.ID,
			line.OrganizationID,
			line.TransactionID,
			line.LineNumber,
			line.LineType,
			line.Quantity,
			line.UnitAmount,
			line.LineAmount,
			line.SmartCode,
			line.LineData,
			line.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create transaction line %d: %w", line.LineNumber, mapPostgresError(err))
		}
	}
	return nil
}

func (s *txnStore) GetTransaction(ctx context.Context, orgID, id uuid.UUID) (*models.Transaction, error) {
	st := (*Store)(s)

	query := `SELECT ` + txnColumns + ` FROM universal_transactions WHERE organization_id = $1 AND id = $2`

	t, err := scanTransaction(st.db.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", mapPostgresError(err))
	}
	return t, nil
}

func (s *txnStore) ListTransactions(ctx context.Context, orgID uuid.UUID, f store.TransactionFilter) ([]*models.Transaction, error) {
	st := (*Store)(s)

	query := `SELECT ` + txnColumns + ` FROM universal_transactions WHERE organization_id = $1`
	args := []any{orgID}

	if f.ID != uuid.Nil {
		args = append(args, f.ID)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if f.TransactionType != "" {
		args = append(args, f.TransactionType)
		query += fmt.Sprintf(" AND transaction_type = $%d", len(args))
	}
	if f.TransactionCode != "" {
		args = append(args, f.TransactionCode)
		query += fmt.Sprintf(" AND lower(transaction_code) = lower($%d)", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := st.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *txnStore) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	st := (*Store)(s)

	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE universal_transactions SET
			transaction_type = $3,
			transaction_code = $4,
			smart_code = $5,
			source_entity_id = $6,
			target_entity_id = $7,
			total_amount = $8,
			transaction_date = $9,
			status = $10,
			metadata = $11,
			updated_at = $12
		WHERE organization_id = $1 AND id = $2
	`

	result, err := st.db.Exec(ctx, query,
		t.OrganizationID,
		t.ID,
		t.TransactionType,
		t.TransactionCode,
		t.SmartCode,
		nullableUUID(t.SourceEntityID),
		nullableUUID(t.TargetEntityID),
		t.TotalAmount,
		t.TransactionDate,
		t.Status,
		t.Metadata,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrTransactionNotFound
	}
	return nil
}

func (s *txnStore) SetTransactionStatus(ctx context.Context, orgID, id uuid.UUID, status string) error {
	st := (*Store)(s)

	query := `
		UPDATE universal_transactions SET status = $3, updated_at = $4
		WHERE organization_id = $1 AND id = $2
	`

	result, err := st.db.Exec(ctx, query, orgID, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set transaction status: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrTransactionNotFound
	}
	return nil
}

func (s *txnStore) HardDeleteTransaction(ctx context.Context, orgID, id uuid.UUID) error {
	st := (*Store)(s)

	_, err := st.db.Exec(ctx, `
		UPDATE core_relationships SET is_active = FALSE, updated_at = $3
		WHERE organization_id = $1 AND (from_id = $2 OR to_id = $2)
	`, orgID, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate transaction relationships: %w", mapPostgresError(err))
	}

	result, err := st.db.Exec(ctx,
		`DELETE FROM universal_transactions WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrTransactionNotFound
	}
	return nil
}

func (s *txnStore) ListLines(ctx context.Context, orgID, transactionID uuid.UUID) ([]*models.TransactionLine, error) {
	st := (*Store)(s)

	if _, err := s.GetTransaction(ctx, orgID, transactionID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, organization_id, transaction_id, line_number, line_type,
			quantity, unit_amount, line_amount, smart_code, line_data, created_at
		FROM universal_transaction_lines
		WHERE organization_id = $1 AND transaction_id = $2
		ORDER BY line_number
	`

	rows, err := st.db.Query(ctx, query, orgID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction lines: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.TransactionLine
	for rows.Next() {
		var l models.TransactionLine
		err := rows.Scan(
			&l.ID,
			&l.OrganizationID,
			&l.TransactionID,
			&l.LineNumber,
			&l.LineType,
			&l.Quantity,
			&l.UnitAmount,
			&l.LineAmount,
			&l.SmartCode,
			&l.LineData,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction line: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *txnStore) ApproveTransaction(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	st := (*Store)(s)

	query := `
		UPDATE universal_transactions SET status = $3, updated_at = $4
		WHERE organization_id = $1 AND id = $2 AND status = $5
	`

	result, err := st.db.Exec(ctx, query, orgID, id, models.TxnStatusApproved, time.Now().UTC(), models.TxnStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to approve transaction: %w", mapPostgresError(err))
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}
	txn, err := s.GetTransaction(ctx, orgID, id)
	if err != nil {
		return false, err
	}
	if txn.Status == models.TxnStatusApproved {
		return false, nil
	}
	return false, fmt.Errorf("%w: status is %q", store.ErrTransactionNotPending, txn.Status)
}
