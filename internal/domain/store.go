package domain

import (
	"context"
	"io"
	"time"
)

// KVStore is the durable key/value backend behind every persistent cell and
// map. Values are opaque JSON blobs. The contract mirrors the flush
// discipline of the persistence primitives: Snapshot is called exactly once
// per actor cold start, PutAll/DeleteAll are batched so a flush is at most
// one write round-trip plus one delete round-trip.
type KVStore interface {
	// Snapshot returns every key under the given prefix with its value.
	Snapshot(ctx context.Context, prefix string) (map[string][]byte, error)
	// PutAll writes all entries in one batch.
	PutAll(ctx context.Context, entries map[string][]byte) error
	// DeleteAll removes all listed keys in one batch. Missing keys are not
	// an error.
	DeleteAll(ctx context.Context, keys []string) error
	// DropPrefix removes every key under the prefix (admin wipe).
	DropPrefix(ctx context.Context, prefix string) error
}

// BlobWriter uploads an object to long-term blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// RateLimiter bounds how often a keyed action may happen inside a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ClosedPositionSink receives positions that have just reached terminal
// closed state. Implementations archive or announce them; failures are
// logged by the caller and never affect the close itself.
type ClosedPositionSink interface {
	PositionClosed(ctx context.Context, pairID string, pos Position) error
}
