package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// Map is a keyed collection backed by one storage key per entry, namespaced
// by a collection prefix. Dirty and deleted keys are tracked independently
// and are mutually exclusive: setting a key clears any pending delete for it
// and vice versa. Flush issues at most one batched put and one batched
// delete.
type Map[T any] struct {
	prefix  string
	items   map[string]T
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

// NewMap creates an empty collection using the given storage key prefix.
func NewMap[T any](prefix string) *Map[T] {
	return &Map[T]{
		prefix:  prefix,
		items:   make(map[string]T),
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

func (m *Map[T]) storageKey(key string) string {
	return m.prefix + ":" + key
}

// Initialize hydrates the collection from a bulk snapshot, selecting the
// entries under this collection's prefix. Pending dirty/delete state is
// reset: hydration reflects storage exactly.
func (m *Map[T]) Initialize(snapshot map[string][]byte) error {
	m.items = make(map[string]T)
	m.dirty = make(map[string]struct{})
	m.deleted = make(map[string]struct{})
	p := m.prefix + ":"
	for k, raw := range snapshot {
		if !strings.HasPrefix(k, p) {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("state: map %q: decode %q: %w", m.prefix, k, err)
		}
		m.items[strings.TrimPrefix(k, p)] = v
	}
	return nil
}

// Get returns the value for key.
func (m *Map[T]) Get(key string) (T, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Set stores the value and marks the key dirty, clearing any pending delete.
func (m *Map[T]) Set(key string, v T) {
	m.items[key] = v
	delete(m.deleted, key)
	m.dirty[key] = struct{}{}
}

// Delete removes the key and marks it deleted, clearing any pending put. A
// key set and then deleted before a flush produces only a delete.
func (m *Map[T]) Delete(key string) {
	delete(m.items, key)
	delete(m.dirty, key)
	m.deleted[key] = struct{}{}
}

// Len returns the number of live entries.
func (m *Map[T]) Len() int {
	return len(m.items)
}

// Keys returns the live keys in unspecified order.
func (m *Map[T]) Keys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}

// Range calls fn for every live entry until fn returns false.
func (m *Map[T]) Range(fn func(key string, v T) bool) {
	for k, v := range m.items {
		if !fn(k, v) {
			return
		}
	}
}

// Clear removes every entry, marking them all deleted.
func (m *Map[T]) Clear() {
	for k := range m.items {
		m.deleted[k] = struct{}{}
	}
	m.items = make(map[string]T)
	m.dirty = make(map[string]struct{})
}

// Flush writes all dirty entries in one batched put and removes all deleted
// keys in one batched delete, clearing each tracker only on the success of
// its own batch. With nothing pending it performs zero storage I/O.
func (m *Map[T]) Flush(ctx context.Context, store domain.KVStore) error {
	var errs []error

	if len(m.dirty) > 0 {
		entries := make(map[string][]byte, len(m.dirty))
		for k := range m.dirty {
			raw, err := json.Marshal(m.items[k])
			if err != nil {
				errs = append(errs, fmt.Errorf("state: map %q: encode %q: %w", m.prefix, k, err))
				continue
			}
			entries[m.storageKey(k)] = raw
		}
		if len(entries) > 0 {
			if err := store.PutAll(ctx, entries); err != nil {
				errs = append(errs, fmt.Errorf("state: map %q: flush puts: %w", m.prefix, err))
			} else {
				m.dirty = make(map[string]struct{})
			}
		}
	}

	if len(m.deleted) > 0 {
		keys := make([]string, 0, len(m.deleted))
		for k := range m.deleted {
			keys = append(keys, m.storageKey(k))
		}
		if err := store.DeleteAll(ctx, keys); err != nil {
			errs = append(errs, fmt.Errorf("state: map %q: flush deletes: %w", m.prefix, err))
		} else {
			m.deleted = make(map[string]struct{})
		}
	}

	return errors.Join(errs...)
}
