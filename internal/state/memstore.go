package state

import (
	"context"
	"strings"
	"sync"
)

// MemStore is an in-memory KVStore used by tests and by dev mode when no
// redis/postgres backend is configured.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// Op counters let tests assert on write amplification.
	PutCalls    int
	DeleteCalls int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Snapshot returns a copy of every entry under prefix.
func (s *MemStore) Snapshot(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// PutAll stores all entries.
func (s *MemStore) PutAll(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCalls++
	for k, v := range entries {
		s.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// DeleteAll removes all listed keys.
func (s *MemStore) DeleteAll(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// DropPrefix removes every key under prefix.
func (s *MemStore) DropPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
