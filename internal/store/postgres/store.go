// Package postgres implements the store contract on PostgreSQL using pgx.
// One Store wraps a connection pool; WithinTx hands the callback a view of
// the same Store bound to a single transaction.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/heraerp/hera-core/internal/store"
)

// DB is the query surface shared by pgxpool.Pool and pgx.Tx, so every store
// method works identically inside and outside a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds configuration for the PostgreSQL store.
type Config struct {
	Pool PoolConfig

	// AutoMigrate runs pending schema migrations at startup.
	AutoMigrate bool
}

// Store implements store.TxRunner on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	db   DB
}

// New connects, optionally migrates, and returns a ready store.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	log.Info().Msg("Connected to PostgreSQL")
	return &Store{pool: pool, db: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Organizations() store.OrganizationStore { return (*orgStore)(s) }
func (s *Store) Entities() store.EntityStore            { return (*entityStore)(s) }
func (s *Store) Relationships() store.RelationshipStore { return (*relStore)(s) }
func (s *Store) Transactions() store.TransactionStore   { return (*txnStore)(s) }

// WithinTx runs the function against a single database transaction. The
// passed Stores view shares this Store's pool but routes every query through
// the transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(st store.Stores) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}
	return nil
}
