package state

import (
	"context"
	"strings"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// prefixedStore namespaces every key of an underlying KVStore, so all actors
// can share one backend while each sees only its own keys.
type prefixedStore struct {
	inner  domain.KVStore
	prefix string
}

// Prefixed wraps store so that every key is transparently namespaced under
// prefix.
func Prefixed(store domain.KVStore, prefix string) domain.KVStore {
	return &prefixedStore{inner: store, prefix: prefix}
}

func (p *prefixedStore) Snapshot(ctx context.Context, prefix string) (map[string][]byte, error) {
	raw, err := p.inner.Snapshot(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[strings.TrimPrefix(k, p.prefix)] = v
	}
	return out, nil
}

func (p *prefixedStore) PutAll(ctx context.Context, entries map[string][]byte) error {
	namespaced := make(map[string][]byte, len(entries))
	for k, v := range entries {
		namespaced[p.prefix+k] = v
	}
	return p.inner.PutAll(ctx, namespaced)
}

func (p *prefixedStore) DeleteAll(ctx context.Context, keys []string) error {
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = p.prefix + k
	}
	return p.inner.DeleteAll(ctx, namespaced)
}

func (p *prefixedStore) DropPrefix(ctx context.Context, prefix string) error {
	return p.inner.DropPrefix(ctx, p.prefix+prefix)
}
