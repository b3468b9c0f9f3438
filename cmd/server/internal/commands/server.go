package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heraerp/hera-core/internal/authz"
	"github.com/heraerp/hera-core/internal/cache"
	"github.com/heraerp/hera-core/internal/engine"
	"github.com/heraerp/hera-core/internal/logger"
	"github.com/heraerp/hera-core/internal/server"
	"github.com/heraerp/hera-core/internal/store"
	memorystore "github.com/heraerp/hera-core/internal/store/memory"
	postgresstore "github.com/heraerp/hera-core/internal/store/postgres"
	"github.com/heraerp/hera-core/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"HERA_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"HERA_CORS_ORIGINS"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"HERA_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"HERA_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Cache configuration
	RedisAddr     string        `help:"redis address for the authorization cache (empty for in-memory)" default:"" env:"HERA_REDIS_ADDR"`
	RedisPassword string        `help:"redis password" default:"" env:"HERA_REDIS_PASSWORD"`
	RedisDB       int           `help:"redis database number" default:"0" env:"HERA_REDIS_DB"`
	CacheTTL      time.Duration `help:"TTL for cached membership lookups" default:"30s" env:"HERA_CACHE_TTL"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"HERA_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "hera-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	var runner store.TxRunner
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return err
		}
		pg, err := postgresstore.New(ctx, &postgresstore.Config{
			Pool: postgresstore.PoolConfig{
				ConnString:      c.PostgresStore.ConnString,
				MaxConns:        c.PostgresStore.MaxConns,
				MinConns:        c.PostgresStore.MinConns,
				MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
				MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			},
			AutoMigrate: c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("failed to create postgres store: %w", err)
		}
		defer pg.Close()
		runner = pg
		log.Info().Msg("Using PostgreSQL store")
	default:
		runner = memorystore.New()
		log.Info().Msg("Using in-memory store")
	}

	if err := runner.Organizations().EnsurePlatformOrganization(ctx); err != nil {
		return fmt.Errorf("failed to ensure platform organization: %w", err)
	}

	var authzCache cache.Cache
	if c.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		authzCache = redisCache
		log.Info().Str("addr", c.RedisAddr).Msg("Using redis authorization cache")
	} else {
		authzCache = cache.NewMemory()
		log.Info().Msg("Using in-memory authorization cache")
	}

	gate := authz.New(runner, authz.WithCache(authzCache, c.CacheTTL))
	eng, err := engine.New(runner, gate)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	srv := configureHTTPServer(c.Listen, server.NewServer(eng, c.CORSOrigins).Handler(log))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
