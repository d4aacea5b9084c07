package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// ─── Session Snapshots ──────────────────────────────────────────────────────

// SaveSnapshot stores the full state of a session, replacing the previous one.
func (d *DB) SaveSnapshot(session string, st domain.State) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = d.db.Exec(
		`INSERT INTO snapshots (session, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		session, string(body), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", session, err)
	}
	return nil
}

// LoadSnapshot returns the stored state of a session, or nil if none.
func (d *DB) LoadSnapshot(session string) (*domain.State, error) {
	var body string
	err := d.db.QueryRow(`SELECT body FROM snapshots WHERE session = ?`, session).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", session, err)
	}

	var st domain.State
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", session, err)
	}
	if st.BadgesUnlocked == nil {
		st.BadgesUnlocked = make(map[string]bool)
	}
	return &st, nil
}
