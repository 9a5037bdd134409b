package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

type fakeWriter struct {
	puts map[string][]byte
	ct   map[string]string
	err  error
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.puts == nil {
		w.puts = make(map[string][]byte)
		w.ct = make(map[string]string)
	}
	w.puts[path] = body
	w.ct[path] = contentType
	return nil
}

func TestPositionClosedWritesOneObject(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(writer, slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	pos := domain.Position{
		ID:     "pos-001",
		UserID: 7,
		Status: domain.StatusClosed,
		NetPNL: decimal.FromInt64(42),
	}
	require.NoError(t, a.PositionClosed(context.Background(), "tok-vs", pos))

	body, ok := writer.puts["closed/tok-vs/pos-001.json"]
	require.True(t, ok, "object keyed by pair and position ID")
	assert.Equal(t, "application/json", writer.ct["closed/tok-vs/pos-001.json"])

	var doc record
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "tok-vs", doc.PairID)
	assert.Equal(t, "2026-03-01T12:00:00Z", doc.ArchivedAt)
	assert.Equal(t, "pos-001", doc.Position.ID)
	assert.True(t, decimal.Equal(decimal.FromInt64(42), doc.Position.NetPNL))
}

func TestPositionClosedPropagatesUploadFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("bucket gone")}
	a := NewArchiver(writer, slog.New(slog.DiscardHandler))

	err := a.PositionClosed(context.Background(), "tok-vs", domain.Position{ID: "pos-002"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos-002")
}
