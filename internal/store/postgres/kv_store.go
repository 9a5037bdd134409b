package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// KVStore implements domain.KVStore over a single actor_state table: one row
// per storage key, value stored as JSONB. Batch writes go through a pgx
// batch so a flush stays one round-trip per kind.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore creates a KVStore backed by the given connection pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// escapeLike escapes LIKE metacharacters in a key prefix.
func escapeLike(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

// Snapshot returns every key under prefix with its value.
func (s *KVStore) Snapshot(ctx context.Context, prefix string) (map[string][]byte, error) {
	const query = `SELECT key, value FROM actor_state WHERE key LIKE $1`

	rows, err := s.pool.Query(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("postgres: snapshot %q: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("postgres: snapshot scan: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: snapshot rows: %w", err)
	}
	return out, nil
}

// PutAll upserts all entries in one batched round-trip.
func (s *KVStore) PutAll(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `
		INSERT INTO actor_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	batch := &pgx.Batch{}
	for k, v := range entries {
		batch.Queue(query, k, v)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: put batch of %d: %w", len(entries), err)
	}
	return nil
}

// DeleteAll removes all listed keys in one statement.
func (s *KVStore) DeleteAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM actor_state WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("postgres: delete batch of %d: %w", len(keys), err)
	}
	return nil
}

// DropPrefix removes every key under prefix.
func (s *KVStore) DropPrefix(ctx context.Context, prefix string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM actor_state WHERE key LIKE $1`, escapeLike(prefix)+"%"); err != nil {
		return fmt.Errorf("postgres: drop prefix %q: %w", prefix, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.KVStore = (*KVStore)(nil)
