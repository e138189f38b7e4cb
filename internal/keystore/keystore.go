package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrEmptyNamespace = errors.New("namespace must not be empty")

const schema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	namespace  TEXT PRIMARY KEY,
	key        TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// Store hands out one durable opaque key per namespace. Keys are created
// lazily on first use and reused for the lifetime of the installation; they
// are identifiers, not secrets.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the key database at path and ensures the
// base schema. cmd/migrate owns schema evolution beyond the base table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure keystore schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreateKey returns the namespace's key, generating and persisting one
// if none exists yet. Concurrent first calls for the same namespace converge
// on a single stored key.
func (s *Store) GetOrCreateKey(ctx context.Context, namespace string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return "", ErrEmptyNamespace
	}

	existing, err := s.lookup(ctx, namespace)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	candidate := newKey(namespace)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (namespace, key, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO NOTHING`,
		namespace, candidate, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", err
	}

	// Re-read instead of trusting the candidate: a concurrent insert may
	// have won the conflict.
	return s.lookup(ctx, namespace)
}

func (s *Store) lookup(ctx context.Context, namespace string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT key FROM idempotency_keys WHERE namespace = ?`, namespace).Scan(&key)
	return key, err
}

// newKey follows the installation-token format <prefix>-<timestamp>-<random>.
func newKey(namespace string) string {
	random := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%d-%s", namespace, time.Now().UnixMilli(), random)
}
