package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
)

// DocumentStore keeps progression documents in the documents table.
// Merges overlay top-level fields inside one transaction.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore returns a cloudsync.RemoteStore backed by db.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Get returns the stored document, or nil, nil when absent.
func (s *DocumentStore) Get(ctx context.Context, id string) (*cloudsync.Document, error) {
	var body string
	err := s.db.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	var doc cloudsync.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// Merge overwrites the present fields of doc, creating the row if needed.
func (s *DocumentStore) Merge(ctx context.Context, id string, doc cloudsync.Document) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	var base string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&base)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read document %s: %w", id, err)
	}

	merged, err := cloudsync.Overlay([]byte(base), doc)
	if err != nil {
		return fmt.Errorf("merge document %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		id, string(merged), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write document %s: %w", id, err)
	}
	return tx.Commit()
}

// Ping checks the database.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
