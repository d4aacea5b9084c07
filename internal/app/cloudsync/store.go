package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// RemoteStore is a keyed document store with field-level merge writes.
type RemoteStore interface {
	// Get returns the document, or nil, nil when it does not exist.
	Get(ctx context.Context, id string) (*Document, error)
	// Merge overwrites the fields present in doc and leaves the rest of the
	// stored document untouched, creating it when absent.
	Merge(ctx context.Context, id string, doc Document) error
	Ping(ctx context.Context) error
}

// Fields splits a document into its present top-level fields, JSON-encoded.
// Stores that merge key by key (hashes, JSON objects) build on it.
func Fields(doc Document) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("split document: %w", err)
	}
	return fields, nil
}

// FromFields reassembles a document from top-level JSON fields.
// Unknown fields are ignored so newer writers do not break older readers.
func FromFields(fields map[string]json.RawMessage) (*Document, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("join document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Overlay merges the present fields of patch over the JSON object base.
// A nil or empty base yields patch alone.
func Overlay(base []byte, patch Document) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, fmt.Errorf("decode stored document: %w", err)
		}
	}
	top, err := Fields(patch)
	if err != nil {
		return nil, err
	}
	maps.Copy(fields, top)
	return json.Marshal(fields)
}

// ─── Memory Store ───────────────────────────────────────────────────────────

// MemoryStore keeps documents in process memory as JSON.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Get decodes the stored document.
func (m *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	raw, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// Merge overlays doc onto the stored document.
func (m *MemoryStore) Merge(ctx context.Context, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	merged, err := Overlay(m.docs[id], doc)
	if err != nil {
		return fmt.Errorf("merge document %s: %w", id, err)
	}
	m.docs[id] = merged
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Raw returns the stored JSON of a document, for inspection.
func (m *MemoryStore) Raw(id string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.docs[id]...)
}
