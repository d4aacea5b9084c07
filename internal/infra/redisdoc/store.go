// Package redisdoc stores progression documents as Redis hashes, one hash
// field per top-level document field. HSET of the present fields is the
// merge-write: fields a writer omits keep their stored value.
package redisdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a local-development configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "studyaddict:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store is a cloudsync.RemoteStore on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.KeyPrefix), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Key returns the hash key of a document.
func (s *Store) Key(id string) string {
	return s.prefix + "progress:" + id
}

// Get reads the document hash; an empty hash means no document.
func (s *Store) Get(ctx context.Context, id string) (*cloudsync.Document, error) {
	vals, err := s.client.HGetAll(ctx, s.Key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return DecodeHash(vals)
}

// Merge writes the present fields of doc into the hash.
func (s *Store) Merge(ctx context.Context, id string, doc cloudsync.Document) error {
	values, err := EncodeHash(doc)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.Key(id), values).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", id, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// EncodeHash maps each present document field to its JSON encoding.
func EncodeHash(doc cloudsync.Document) (map[string]any, error) {
	fields, err := cloudsync.Fields(doc)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = string(v)
	}
	return values, nil
}

// DecodeHash rebuilds a document from hash values written by EncodeHash.
func DecodeHash(vals map[string]string) (*cloudsync.Document, error) {
	fields := make(map[string]json.RawMessage, len(vals))
	for k, v := range vals {
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("field %s: invalid JSON", k)
		}
		fields[k] = json.RawMessage(v)
	}
	return cloudsync.FromFields(fields)
}
