package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/tradematch/internal/db"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// ErrUnknownBackend is returned by OpenStore for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown feedback store backend")

// StoreConfig selects and configures a feedback store backend.
type StoreConfig struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
	Logger      *slog.Logger
}

// Store is an opened Repository together with the connection backing it. At most one
// of DB and Redis is set; both are nil for the in-memory backend.
type Store struct {
	Repository Repository
	Backend    string
	DB         *sql.DB
	Redis      *redis.Client
}

// OpenStore connects to the configured backend. SQLite databases get the schema applied
// on open; Postgres expects the migrations to have been run.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return &Store{Repository: NewInMemoryRepository(), Backend: BackendMemory}, nil

	case BackendPostgres:
		conn, err := db.OpenPostgres(ctx, cfg.DatabaseURL, db.DefaultPostgresPool())
		if err != nil {
			return nil, err
		}
		return &Store{Repository: NewPostgresRepository(conn, logger), Backend: cfg.Backend, DB: conn}, nil

	case BackendSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := EnsureSQLiteSchema(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &Store{Repository: NewSQLiteRepository(conn, logger), Backend: cfg.Backend, DB: conn}, nil

	case BackendRedis:
		client, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Store{Repository: NewRedisRepository(client, cfg.RedisPrefix, logger), Backend: cfg.Backend, Redis: client}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Close releases the backing connection, if any.
func (s *Store) Close() error {
	switch {
	case s.DB != nil:
		return s.DB.Close()
	case s.Redis != nil:
		return s.Redis.Close()
	default:
		return nil
	}
}
