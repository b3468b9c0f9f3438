package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

type entityStore Store

const entityColumns = `
	id, organization_id, entity_type, entity_name, entity_code,
	smart_code, status, metadata, created_at, updated_at
`

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var e models.Entity
	err := row.Scan(
		&e.ID,
		&e.OrganizationID,
		&e.EntityType,
		&e.EntityName,
		&e.EntityCode,
		&e.SmartCode,
		&e.Status,
		&e.Metadata,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *entityStore) CreateEntity(ctx context.Context, e *models.Entity) error {
	st := (*Store)(s)

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	if e.Status == "" {
		e.Status = models.StatusActive
	}

	query := `
		INSERT INTO core_entities (
			id, organization_id, entity_type, entity_name, entity_code,
			smart_code, status, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := st.db.Exec(ctx, query,
		e.ID,
		e.OrganizationID,
		e.EntityType,
		e.EntityName,
		e.EntityCode,
		e.SmartCode,
		e.Status,
		e.Metadata,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("entity_id", e.ID.String()).
		Str("entity_type", e.EntityType).
		Msg("Created entity")

	return nil
}

func (s *entityStore) GetEntity(ctx context.Context, orgID, id uuid.UUID) (*models.Entity, error) {
	st := (*Store)(s)

	query := `SELECT ` + entityColumns + ` FROM core_entities WHERE organization_id = $1 AND id = $2`

	e, err := scanEntity(st.db.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", mapPostgresError(err))
	}
	return e, nil
}

func (s *entityStore) ListEntities(ctx context.Context, orgID uuid.UUID, f store.EntityFilter) ([]*models.Entity, error) {
	st := (*Store)(s)

	query := `SELECT ` + entityColumns + ` FROM core_entities WHERE organization_id = $1`
	args := []any{orgID}

	if f.ID != uuid.Nil {
		args = append(args, f.ID)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if f.EntityCode != "" {
		args = append(args, f.EntityCode)
		query += fmt.Sprintf(" AND lower(entity_code) = lower($%d)", len(args))
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
		return nil, fmt.Errorf("failed to list entities: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *entityStore) UpdateEntity(ctx context.Context, e *models.Entity) error {
	st := (*Store)(s)

	e.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE core_entities SET
			entity_type = $3,
			entity_name = $4,
			entity_code = $5,
			smart_code = $6,
			status = $7,
			metadata = $8,
			updated_at = $9
		WHERE organization_id = $1 AND id = $2
	`

	result, err := st.db.Exec(ctx, query,
		e.OrganizationID,
		e.ID,
		e.EntityType,
		e.EntityName,
		e.EntityCode,
		e.SmartCode,
		e.Status,
		e.Metadata,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrEntityNotFound
	}
	return nil
}

func (s *entityStore) SetEntityStatus(ctx context.Context, orgID, id uuid.UUID, status string) error {
	st := (*Store)(s)

	query := `
		UPDATE core_entities SET status = $3, updated_at = $4
		WHERE organization_id = $1 AND id = $2
	`

	result, err := st.db.Exec(ctx, query, orgID, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set entity status: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrEntityNotFound
	}
	return nil
}

func (s *entityStore) HardDeleteEntity(ctx context.Context, orgID, id uuid.UUID) error {
	st := (*Store)(s)

	// Edges are audit history: deactivate rather than remove.
	deactivate := `
		UPDATE core_relationships SET is_active = FALSE, updated_at = $3
		WHERE organization_id = $1 AND (from_id = $2 OR to_id = $2)
	`
	if _, err := st.db.Exec(ctx, deactivate, orgID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to deactivate relationships: %w", mapPostgresError(err))
	}

	// Dynamic fields cascade with the row.
	result, err := st.db.Exec(ctx,
		`DELETE FROM core_entities WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrEntityNotFound
	}

	log.Debug().Str("entity_id", id.String()).Msg("Hard-deleted entity")
	return nil
}

func (s *entityStore) UpsertDynamicField(ctx context.Context, f *models.DynamicField) error {
	st := (*Store)(s)

	if f.ID == uuid.Nil {
		f.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO core_dynamic_data (
			id, organization_id, entity_id, field_name, field_type,
			value_text, value_number, value_boolean, value_date, value_json,
			smart_code, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12
		)
		ON CONFLICT (entity_id, field_name) DO UPDATE SET
			field_type = EXCLUDED.field_type,
			value_text = EXCLUDED.value_text,
			value_number = EXCLUDED.value_number,
			value_boolean = EXCLUDED.value_boolean,
			value_date = EXCLUDED.value_date,
			value_json = EXCLUDED.value_json,
			smart_code = EXCLUDED.smart_code,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := st.db.QueryRow(ctx, query,
		f.ID,
		f.OrganizationID,
		f.EntityID,
		f.FieldName,
		f.FieldType,
		f.ValueText,
		f.ValueNumber,
		f.ValueBoolean,
		f.ValueDate,
		f.ValueJSON,
		f.SmartCode,
		now,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert dynamic field: %w", mapPostgresError(err))
	}
	f.UpdatedAt = now
	return nil
}

func (s *entityStore) ListDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]*models.DynamicField, error) {
	st := (*Store)(s)

	// Distinguish a missing entity from one without fields.
	if _, err := st.Entities().GetEntity(ctx, orgID, entityID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, organization_id, entity_id, field_name, field_type,
			value_text, value_number, value_boolean, value_date, value_json,
			smart_code, created_at, updated_at
		FROM core_dynamic_data
		WHERE organization_id = $1 AND entity_id = $2
		ORDER BY field_name
	`

	rows, err := st.db.Query(ctx, query, orgID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dynamic fields: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.DynamicField
	for rows.Next() {
		var f models.DynamicField
		err := rows.Scan(
			&f.ID,
			&f.OrganizationID,
			&f.EntityID,
			&f.FieldName,
			&f.FieldType,
			&f.ValueText,
			&f.ValueNumber,
			&f.ValueBoolean,
			&f.ValueDate,
			&f.ValueJSON,
			&f.SmartCode,
			&f.CreatedAt,
			&f.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dynamic field: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
