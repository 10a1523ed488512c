package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/aria-characters/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// pool is the subset of pgxpool.Pool the store needs. pgxmock.PgxPoolIface
// satisfies it as well.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config controls how the store connects.
type Config struct {
	DatabaseURL    string
	ConnectTimeout time.Duration
	// SkipMigrations leaves the schema untouched; the migrate command runs them explicitly.
	SkipMigrations bool
}

// Store provides Postgres-backed persistence for users and characters.
type Store struct {
	pool pool
}

// New connects, verifies the connection within cfg.ConnectTimeout and runs
// migrations. A dead database fails here instead of on the first request.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		pgCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	p, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !cfg.SkipMigrations {
		if err := Migrate(ctx, p); err != nil {
			p.Close()
			return nil, err
		}
	}

	return &Store{pool: p}, nil
}

// NewWithPool wraps an existing pool (used by tests with pgxmock).
func NewWithPool(p pool) *Store {
	return &Store{pool: p}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
