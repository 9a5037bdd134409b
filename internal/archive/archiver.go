// Package archive writes closed positions to long-term blob storage. Each
// position becomes one JSON object, keyed by pair and position ID, so the
// durable history survives an admin wipe of the live key/value store.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// record is the archived document. It wraps the position with the pair it
// belonged to and the archival timestamp, since neither is recoverable from
// the position alone.
type record struct {
	PairID     string          `json:"pairID"`
	ArchivedAt string          `json:"archivedAt"`
	Position   domain.Position `json:"position"`
}

// Archiver implements domain.ClosedPositionSink over a blob writer.
type Archiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver that uploads through writer.
func NewArchiver(writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archive")),
		now:    time.Now,
	}
}

// PositionClosed serializes the position and uploads it to
// closed/{pairID}/{positionID}.json. Re-archiving the same position
// overwrites the previous object, so retries after a partial failure are
// safe.
func (a *Archiver) PositionClosed(ctx context.Context, pairID string, pos domain.Position) error {
	doc := record{
		PairID:     pairID,
		ArchivedAt: a.now().UTC().Format(time.RFC3339),
		Position:   pos,
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("archive: marshal position %s: %w", pos.ID, err)
	}

	path := objectPath(pairID, pos.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("archive: upload position %s: %w", pos.ID, err)
	}

	a.logger.Info("archived closed position",
		slog.String("positionID", pos.ID),
		slog.String("path", path))
	return nil
}

func objectPath(pairID, positionID string) string {
	return fmt.Sprintf("closed/%s/%s.json", pairID, positionID)
}
