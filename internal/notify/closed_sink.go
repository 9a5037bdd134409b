package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// ClosedSink implements domain.ClosedPositionSink by announcing each closed
// position over the notifier channels, and directly to the owning user's
// Telegram chat when the position carries one.
type ClosedSink struct {
	notifier *Notifier
	owners   *TelegramSender // optional direct line to position owners
	logger   *slog.Logger
}

// NewClosedSink creates a ClosedSink. owners may be nil, in which case only
// the broadcast channels are used.
func NewClosedSink(notifier *Notifier, owners *TelegramSender, logger *slog.Logger) *ClosedSink {
	return &ClosedSink{
		notifier: notifier,
		owners:   owners,
		logger:   logger.With(slog.String("component", "closed_sink")),
	}
}

// PositionClosed formats and delivers the close announcement. Owner delivery
// and broadcast delivery fail independently.
func (s *ClosedSink) PositionClosed(ctx context.Context, pairID string, pos domain.Position) error {
	title := "Position closed"
	message := formatClosed(pairID, pos)

	var errs []error
	if s.owners != nil && pos.ChatID != 0 {
		if err := s.owners.SendTo(ctx, pos.ChatID, title, message); err != nil {
			s.logger.WarnContext(ctx, "owner notification failed",
				slog.String("positionID", pos.ID),
				slog.Int64("chatID", pos.ChatID),
				slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := s.notifier.Notify(ctx, EventPositionClosed, title, message); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func formatClosed(pairID string, pos domain.Position) string {
	symbol := pos.Token.Symbol
	if symbol == "" {
		symbol = pos.Token.Address
	}
	return fmt.Sprintf("pair: %s\nposition: %s\ntoken: %s\nfill: %s\npeak: %s\nnet PNL: %s",
		pairID, pos.ID, symbol,
		pos.FillPrice.String(), pos.PeakPrice.String(), pos.NetPNL.String())
}
