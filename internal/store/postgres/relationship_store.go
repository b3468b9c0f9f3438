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

type relStore Store

const relColumns = `
	id, organization_id, from_id, to_id, relationship_type,
	smart_code, context, is_active, strength, created_at, updated_at
`

func scanRelationship(row pgx.Row) (*models.Relationship, error) {
	var r models.Relationship
	err := row.Scan(
		&r.ID,
		&r.OrganizationID,
		&r.FromID,
		&r.ToID,
		&r.RelationshipType,
		&r.SmartCode,
		&r.Context,
		&r.IsActive,
		&r.Strength,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *relStore) UpsertRelationship(ctx context.Context, r *models.Relationship) error {
	st := (*Store)(s)

	if models.IsHierarchical(r.RelationshipType) {
		cycle, err := st.wouldCycle(ctx, r)
		if err != nil {
			return err
		}
		if cycle {
			return store.ErrRelationshipCycle
		}
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO core_relationships (
			id, organization_id, from_id, to_id, relationship_type,
			smart_code, context, is_active, strength, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10
		)
		ON CONFLICT (organization_id, from_id, to_id, relationship_type) DO UPDATE SET
			smart_code = EXCLUDED.smart_code,
			context = EXCLUDED.context,
			is_active = EXCLUDED.is_active,
			strength = EXCLUDED.strength,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	err := st.db.QueryRow(ctx, query,
		r.ID,
		r.OrganizationID,
		r.FromID,
		r.ToID,
		r.RelationshipType,
		r.SmartCode,
		r.Context,
		r.IsActive,
		r.Strength,
		now,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", mapPostgresError(err))
	}
	return nil
}

// wouldCycle walks active same-type edges from r.ToID downward; reaching
// r.FromID means the new edge closes a cycle.
func (st *Store) wouldCycle(ctx context.Context, r *models.Relationship) (bool, error) {
	query := `
		WITH RECURSIVE walk AS (
			SELECT to_id FROM core_relationships
			WHERE organization_id = $1 AND from_id = $2 AND relationship_type = $3 AND is_active
			UNION
			SELECT cr.to_id FROM core_relationships cr
			JOIN walk ON cr.from_id = walk.to_id
			WHERE cr.organization_id = $1 AND cr.relationship_type = $3 AND cr.is_active
		)
		SELECT EXISTS(SELECT 1 FROM walk WHERE to_id = $4)
	`

	var cycle bool
	err := st.db.QueryRow(ctx, query, r.OrganizationID, r.ToID, r.RelationshipType, r.FromID).Scan(&cycle)
	if err != nil {
		return false, fmt.Errorf("failed to check relationship cycle: %w", mapPostgresError(err))
	}
	return cycle, nil
}

func (s *relStore) GetRelationship(ctx context.Context, orgID, id uuid.UUID) (*models.Relationship, error) {
	st := (*Store)(s)

	query := `SELECT ` + relColumns + ` FROM core_relationships WHERE organization_id = $1 AND id = $2`

	r, err := scanRelationship(st.db.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("failed to get relationship: %w", mapPostgresError(err))
	}
	return r, nil
}

func (s *relStore) ListRelationships(ctx context.Context, orgID uuid.UUID, f store.RelationshipFilter) ([]*models.Relationship, error) {
	st := (*Store)(s)

	query := `SELECT ` + relColumns + ` FROM core_relationships WHERE organization_id = $1`
	args := []any{orgID}

	if f.FromID != uuid.Nil {
		args = append(args, f.FromID)
		query += fmt.Sprintf(" AND from_id = $%d", len(args))
	}
	if f.ToID != uuid.Nil {
		args = append(args, f.ToID)
		query += fmt.Sprintf(" AND to_id = $%d", len(args))
	}
	if f.RelationshipType != "" {
		args = append(args, f.RelationshipType)
		query += fmt.Sprintf(" AND relationship_type = $%d", len(args))
	}
	if f.ActiveOnly {
		query += " AND is_active"
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
		return nil, fmt.Errorf("failed to list relationships: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *relStore) DeactivateRelationship(ctx context.Context, orgID, id uuid.UUID) error {
	st := (*Store)(s)

	query := `
		UPDATE core_relationships SET is_active = FALSE, updated_at = $3
		WHERE organization_id = $1 AND id = $2
	`

	result, err := st.db.Exec(ctx, query, orgID, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate relationship: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrRelationshipNotFound
	}
	return nil
}

func (s *relStore) ActiveByFromAndType(ctx context.Context, orgID, fromID uuid.UUID, relType string) (*models.Relationship, error) {
	st := (*Store)(s)

	query := `
		SELECT ` + relColumns + `
		FROM core_relationships
		WHERE organization_id = $1 AND from_id = $2 AND relationship_type = $3 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`

	r, err := scanRelationship(st.db.QueryRow(ctx, query, orgID, fromID, relType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("failed to get active relationship: %w", mapPostgresError(err))
	}
	return r, nil
}

func (s *relStore) EdgeExists(ctx context.Context, orgID, fromID, toID uuid.UUID, relType string) (bool, error) {
	st := (*Store)(s)

	query := `
		SELECT EXISTS(
			SELECT 1 FROM core_relationships
			WHERE organization_id = $1 AND from_id = $2 AND to_id = $3
				AND relationship_type = $4 AND is_active
		)
	`

	var exists bool
	if err := st.db.QueryRow(ctx, query, orgID, fromID, toID, relType).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check edge: %w", mapPostgresError(err))
	}
	return exists, nil
}

// LockSubject takes a FOR UPDATE NOWAIT lock on the subject row so
// concurrent transitions on one subject serialize; the loser fails fast
// with ErrConcurrentTransition instead of queueing.
func (s *relStore) LockSubject(ctx context.Context, orgID, subjectID uuid.UUID) error {
	st := (*Store)(s)

	var id uuid.UUID
	err := st.db.QueryRow(ctx,
		`SELECT id FROM core_entities WHERE organization_id = $1 AND id = $2 FOR UPDATE NOWAIT`,
		orgID, subjectID).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapPostgresError(err)
	}

	err = st.db.QueryRow(ctx,
		`SELECT id FROM universal_transactions WHERE organization_id = $1 AND id = $2 FOR UPDATE NOWAIT`,
		orgID, subjectID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrEntityNotFound
		}
		return mapPostgresError(err)
	}
	return nil
}
