package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellFlushOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cell := NewCell("greeting", "")

	// Never mutated: zero storage I/O.
	require.NoError(t, cell.Flush(ctx, store))
	assert.Equal(t, 0, store.PutCalls)

	cell.Set("hello")
	require.NoError(t, cell.Flush(ctx, store))
	assert.Equal(t, 1, store.PutCalls)

	// Unchanged since flush: no write.
	require.NoError(t, cell.Flush(ctx, store))
	assert.Equal(t, 1, store.PutCalls)

	// Setting the same value back does not dirty the cell.
	cell.Set("hello")
	assert.False(t, cell.Dirty())
	require.NoError(t, cell.Flush(ctx, store))
	assert.Equal(t, 1, store.PutCalls)
}

func TestCellHydratesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	first := NewCell("counter", 0)
	first.Set(42)
	require.NoError(t, first.Flush(ctx, store))

	snapshot, err := store.Snapshot(ctx, "")
	require.NoError(t, err)

	second := NewCell("counter", 0)
	require.NoError(t, second.Initialize(snapshot))
	assert.Equal(t, 42, second.Get())
	assert.False(t, second.Dirty())

	// Writing back the hydrated value stays clean.
	second.Set(42)
	assert.False(t, second.Dirty())
}

func TestMapDirtyAndDeletedAreExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	m := NewMap[string]("pos")

	// set then delete before a flush: only a delete goes out.
	m.Set("a", "one")
	m.Delete("a")
	require.NoError(t, m.Flush(ctx, store))
	assert.Equal(t, 0, store.PutCalls)
	assert.Equal(t, 1, store.DeleteCalls)
	assert.Equal(t, 0, store.Len())

	// delete then set: only a put goes out... the earlier delete for the key
	// is cleared but the batch may still carry other deletions.
	m.Delete("b")
	m.Set("b", "two")
	require.NoError(t, m.Flush(ctx, store))
	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, "two", v)

	snapshot, err := store.Snapshot(ctx, "pos:")
	require.NoError(t, err)
	assert.Contains(t, snapshot, "pos:b")
	assert.NotContains(t, snapshot, "pos:a")
}

func TestMapFlushIsBatched(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	m := NewMap[int]("n")

	for i, k := range []string{"x", "y", "z"} {
		m.Set(k, i)
	}
	require.NoError(t, m.Flush(ctx, store))
	assert.Equal(t, 1, store.PutCalls, "all dirty keys must go out in one batch")

	// Nothing pending: zero I/O.
	require.NoError(t, m.Flush(ctx, store))
	assert.Equal(t, 1, store.PutCalls)
	assert.Equal(t, 0, store.DeleteCalls)
}

func TestMapRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	type rec struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	m := NewMap[rec]("recs")
	m.Set("a", rec{Name: "alpha", N: 1})
	m.Set("b", rec{Name: "beta", N: 2})
	require.NoError(t, m.Flush(ctx, store))
	m.Delete("a")
	require.NoError(t, m.Flush(ctx, store))

	snapshot, err := store.Snapshot(ctx, "")
	require.NoError(t, err)

	fresh := NewMap[rec]("recs")
	require.NoError(t, fresh.Initialize(snapshot))
	assert.Equal(t, 1, fresh.Len())
	v, ok := fresh.Get("b")
	require.True(t, ok)
	assert.Equal(t, rec{Name: "beta", N: 2}, v)
}

func TestMapInitializeIgnoresOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	a := NewMap[int]("a")
	a.Set("k", 1)
	require.NoError(t, a.Flush(ctx, store))
	b := NewMap[int]("b")
	b.Set("k", 2)
	require.NoError(t, b.Flush(ctx, store))

	snapshot, err := store.Snapshot(ctx, "")
	require.NoError(t, err)

	fresh := NewMap[int]("a")
	require.NoError(t, fresh.Initialize(snapshot))
	v, ok := fresh.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, fresh.Len())
}
