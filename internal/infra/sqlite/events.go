package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// ─── Event Log ──────────────────────────────────────────────────────────────

// AppendEvent records an event. Re-appending an ID is a no-op.
func (d *DB) AppendEvent(ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = d.db.Exec(
		`INSERT OR IGNORE INTO events (id, session, kind, at, body) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Session, string(ev.Kind), ev.At.UnixMilli(), string(body),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events of a session, newest first.
func (d *DB) RecentEvents(session string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT body FROM events WHERE session = ? ORDER BY seq DESC LIMIT ?`,
		session, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// EventCount returns how many events a session has logged, by kind.
func (d *DB) EventCount(session string) (map[domain.EventKind]int, error) {
	rows, err := d.db.Query(
		`SELECT kind, COUNT(*) FROM events WHERE session = ? GROUP BY kind`, session,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[domain.EventKind(kind)] = n
	}
	return counts, rows.Err()
}

func scanEvent(s scanner) (*domain.Event, error) {
	var body string
	if err := s.Scan(&body); err != nil {
		return nil, err
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
