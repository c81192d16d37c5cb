// Package storage selects and opens the configured persistence backend.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jobboard/server/internal/config"
	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/jobboard/server/internal/storage/memory"
	"github.com/jobboard/server/internal/storage/mongo"
	"github.com/jobboard/server/internal/storage/postgres"
)

// Store is the persistence surface the services and health checks use.
type Store interface {
	Users() users.Repository
	Jobs() jobs.Repository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*mongo.Store)(nil)
	_ Store = (*memory.Store)(nil)
)

type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
	BackendMemory   Backend = "memory"
)

// BackendFor maps a DATABASE_URL to the backend that serves it.
func BackendFor(databaseURL string) (Backend, error) {
	u, err := url.Parse(strings.TrimSpace(databaseURL))
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "mongodb", "mongodb+srv":
		return BackendMongo, nil
	case "memory":
		return BackendMemory, nil
	case "":
		return "", fmt.Errorf("database url has no scheme")
	default:
		return "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
}

// Open connects to the backend named by cfg.URL.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Store, error) {
	backend, err := BackendFor(cfg.URL)
	if err != nil {
		return nil, err
	}
	log := logger.With().Str("component", "storage").Str("backend", string(backend)).Logger()

	switch backend {
	case BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.URL, cfg.MaxConnections)
		if err != nil {
			return nil, err
		}
		store, err := postgres.New(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Int("max_connections", cfg.MaxConnections).Msg("connected")
		return store, nil
	case BackendMongo:
		store, err := mongo.Connect(ctx, cfg.URL, cfg.Name, cfg.MaxConnections)
		if err != nil {
			return nil, err
		}
		// Index creation is idempotent, so it runs on every start.
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		log.Info().Str("database", cfg.Name).Msg("connected")
		return store, nil
	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}
}

// Migrate brings the schema of the configured backend up to date.
func Migrate(ctx context.Context, cfg config.DatabaseConfig) error {
	backend, err := BackendFor(cfg.URL)
	if err != nil {
		return err
	}
	switch backend {
	case BackendPostgres:
		return postgres.MigrateUp(cfg.URL)
	case BackendMongo:
		store, err := mongo.Connect(ctx, cfg.URL, cfg.Name, 1)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close(context.Background()) }()
		return store.Migrate(ctx)
	default:
		return nil
	}
}

// MigrateDown rolls back steps postgres migrations. Other backends have no
// versioned schema.
func MigrateDown(cfg config.DatabaseConfig, steps int) error {
	backend, err := BackendFor(cfg.URL)
	if err != nil {
		return err
	}
	if backend != BackendPostgres {
		return fmt.Errorf("migrate down is only supported for postgres, got %s", backend)
	}
	return postgres.MigrateDown(cfg.URL, steps)
}

// PostgresPool returns the pool behind a postgres store.
func PostgresPool(store Store) (*pgxpool.Pool, bool) {
	pg, ok := store.(*postgres.Store)
	if !ok {
		return nil, false
	}
	return pg.Pool(), true
}
