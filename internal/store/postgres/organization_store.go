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

type orgStore Store

func (s *orgStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	st := (*Store)(s)

	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = org.CreatedAt

	query := `
		INSERT INTO core_organizations (
			id, name, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := st.db.Exec(ctx, query,
		org.ID,
		org.Name,
		org.Status,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("organization_id", org.ID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

func (s *orgStore) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	st := (*Store)(s)

	query := `
		SELECT id, name, status, created_at, updated_at
		FROM core_organizations
		WHERE id = $1
	`

	var org models.Organization
	err := st.db.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Status,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

func (s *orgStore) EnsurePlatformOrganization(ctx context.Context) error {
	st := (*Store)(s)

	query := `
		INSERT INTO core_organizations (id, name, status)
		VALUES ($1, 'HERA Platform', $2)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := st.db.Exec(ctx, query, models.PlatformOrgID, models.OrgStatusActive); err != nil {
		return fmt.Errorf("failed to ensure platform organization: %w", mapPostgresError(err))
	}
	return nil
}
