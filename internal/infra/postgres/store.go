// Package postgres stores progression documents in a PostgreSQL jsonb
// column. The upsert concatenates objects (doc || excluded.doc), so fields
// a writer omits keep their stored value.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns pool defaults; DSN must still be set.
func DefaultConfig() Config {
	return Config{
		Table:           "progress_documents",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
	}
}

// Store is a cloudsync.RemoteStore on PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Open connects, pings and ensures the documents table exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
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
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = DefaultConfig().Table
	}
	s := &Store{pool: pool, table: TableIdent(table)}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// TableIdent quotes a table name for interpolation into SQL.
func TableIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// CreateSQL returns the table DDL.
func CreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
}

// MergeSQL returns the upsert that concatenates top-level fields.
func MergeSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %[1]s (id, doc, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET doc = %[1]s.doc || excluded.doc, updated_at = now()`, table)
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, CreateSQL(s.table)); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Get returns the document, or nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*cloudsync.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table), id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	var doc cloudsync.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// Merge upserts the present fields of doc.
func (s *Store) Merge(ctx context.Context, id string, doc cloudsync.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.pool.Exec(ctx, MergeSQL(s.table), id, string(body)); err != nil {
		return fmt.Errorf("merge document %s: %w", id, err)
	}
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
