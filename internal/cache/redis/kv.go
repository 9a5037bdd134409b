package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// scanBatch is the COUNT hint for SCAN during snapshots.
const scanBatch = 500

// KV implements domain.KVStore on Redis strings. Snapshot walks the keyspace
// with SCAN and fetches values through a pipeline; PutAll and DeleteAll are
// single round-trips, matching the one-put-one-delete flush discipline of
// the persistence primitives.
type KV struct {
	rdb *redis.Client
}

// NewKV creates a KV store backed by the given Client.
func NewKV(c *Client) *KV {
	return &KV{rdb: c.Underlying()}
}

// Snapshot returns every key under prefix with its value.
func (kv *KV) Snapshot(ctx context.Context, prefix string) (map[string][]byte, error) {
	var keys []string
	iter := kv.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: snapshot scan %q: %w", prefix, err)
	}

	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := kv.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: snapshot fetch %q: %w", prefix, err)
	}
	for i, cmd := range cmds {
		val, err := cmd.Bytes()
		if err == redis.Nil {
			// Deleted between scan and fetch; skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis: snapshot get %q: %w", keys[i], err)
		}
		out[keys[i]] = val
	}
	return out, nil
}

// PutAll writes all entries in one MSET round-trip.
func (kv *KV) PutAll(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]any, 0, len(entries)*2)
	for k, v := range entries {
		args = append(args, k, v)
	}
	if err := kv.rdb.MSet(ctx, args...).Err(); err != nil {
		return fmt.Errorf("redis: put batch of %d: %w", len(entries), err)
	}
	return nil
}

// DeleteAll removes all listed keys in one DEL round-trip.
func (kv *KV) DeleteAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := kv.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: delete batch of %d: %w", len(keys), err)
	}
	return nil
}

// DropPrefix removes every key under prefix.
func (kv *KV) DropPrefix(ctx context.Context, prefix string) error {
	iter := kv.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatch {
			if err := kv.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: drop prefix %q: %w", prefix, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: drop prefix scan %q: %w", prefix, err)
	}
	if len(keys) > 0 {
		if err := kv.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis: drop prefix %q: %w", prefix, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.KVStore = (*KV)(nil)
