// Package state provides the generic dirty-tracked persistence primitives
// that back actor state: a single-value Cell and a keyed Map. Both hydrate
// from a bulk snapshot taken once at cold start and defer storage writes
// until Flush, writing only what actually changed since the last successful
// flush.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// Cell is a single scalar value backed by one storage key. Set marks the
// cell dirty only when the new value differs (by serialized form) from the
// last flushed value, so a cell that is written back to its persisted value
// performs zero storage I/O on flush.
type Cell[T any] struct {
	key     string
	value   T
	flushed []byte // serialized form as of the last successful flush; nil if never persisted
	dirty   bool
}

// NewCell creates a cell with the given storage key and initial value. The
// initial value is considered unflushed: the first Flush after a mutation
// (or after NewCell if Set is called with a differing value) writes it.
func NewCell[T any](key string, initial T) *Cell[T] {
	return &Cell[T]{key: key, value: initial}
}

// Initialize hydrates the cell from a bulk-loaded snapshot. It never issues
// its own storage read. A snapshot without the cell's key leaves the initial
// value in place.
func (c *Cell[T]) Initialize(snapshot map[string][]byte) error {
	raw, ok := snapshot[c.key]
	if !ok {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("state: cell %q: decode snapshot: %w", c.key, err)
	}
	c.value = v
	c.flushed = append([]byte(nil), raw...)
	c.dirty = false
	return nil
}

// Get returns the in-memory value.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set replaces the in-memory value, marking the cell dirty only if the value
// differs from the last flushed state.
func (c *Cell[T]) Set(v T) {
	c.value = v
	raw, err := json.Marshal(v)
	if err != nil {
		// Unmarshalable values surface at flush; stay dirty so the error is
		// not silently lost.
		c.dirty = true
		return
	}
	c.dirty = c.flushed == nil || !bytes.Equal(raw, c.flushed)
}

// Dirty reports whether a flush would write.
func (c *Cell[T]) Dirty() bool {
	return c.dirty
}

// Flush writes the value to storage iff the cell is dirty, then clears the
// dirty flag. A clean cell performs zero storage I/O.
func (c *Cell[T]) Flush(ctx context.Context, store domain.KVStore) error {
	if !c.dirty {
		return nil
	}
	raw, err := json.Marshal(c.value)
	if err != nil {
		return fmt.Errorf("state: cell %q: encode: %w", c.key, err)
	}
	if err := store.PutAll(ctx, map[string][]byte{c.key: raw}); err != nil {
		return fmt.Errorf("state: cell %q: flush: %w", c.key, err)
	}
	c.flushed = raw
	c.dirty = false
	return nil
}
