// Package postgres provides a Postgres-backed checkpoint store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
	"github.com/JakeFAU/wayback-archiver/internal/cache"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "archive_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Replace clears rows left by earlier runs on the first checkpoint, so the table ends up
	// holding only this run's results.
	Replace bool
}

// pool is the subset of *pgxpool.Pool used by the store.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ResultStore keeps one row per input URL.
type ResultStore struct {
	pool    pool
	table   string
	replace bool
}

// Option adjusts a ResultStore built by NewWithPool.
type Option func(*ResultStore)

// WithReplace makes the first checkpoint delete existing rows before writing.
func WithReplace() Option {
	return func(s *ResultStore) { s.replace = true }
}

// New connects to Postgres and returns a store.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	var opts []Option
	if cfg.Replace {
		opts = append(opts, WithReplace())
	}
	store, err := NewWithPool(p, cfg.Table, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, opts ...Option) (*ResultStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &ResultStore{pool: p, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements storage.Provider.
func (s *ResultStore) Name() string { return "postgres" }

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the results table if it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	snapshot_url TEXT NULL,
	last_archived TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Load reads every row into a fresh cache. An empty table yields an empty cache.
func (s *ResultStore) Load(ctx context.Context) (*cache.Cache, error) {
	query := fmt.Sprintf(`SELECT url, snapshot_url, last_archived FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	c := cache.New()
	for rows.Next() {
		var (
			url          string
			snapshotURL  *string
			lastArchived time.Time
		)
		if err := rows.Scan(&url, &snapshotURL, &lastArchived); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		c.Update(url, archiver.Result{URL: snapshotURL, LastArchived: lastArchived.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	c.MarkClean()
	return c, nil
}

// Checkpoint upserts the rows changed since the last checkpoint in a single transaction. In
// replace mode the first checkpoint also deletes rows from earlier runs in that transaction.
func (s *ResultStore) Checkpoint(ctx context.Context, c *cache.Cache, _ bool) error {
	dirty := c.Dirty()
	if len(dirty) == 0 && !s.replace {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, snapshot_url, last_archived)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE
SET snapshot_url = EXCLUDED.snapshot_url, last_archived = EXCLUDED.last_archived`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint: %w", err)
	}
	rows := dirty
	if s.replace {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("clear %s: %w", s.table, err)
		}
		rows = c.Keys()
	}
	for _, url := range rows {
		res, _ := c.Lookup(url)
		if _, err := tx.Exec(ctx, query, url, res.URL, res.LastArchived); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert %q: %w", url, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	s.replace = false
	return nil
}
