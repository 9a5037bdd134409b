package executor

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// LoggingPipeline is a TradePipeline that records every scheduled action in
// the log and reports success. It holds the executor seam open until a real
// venue adapter is configured.
type LoggingPipeline struct {
	logger *slog.Logger
}

// NewLoggingPipeline creates a LoggingPipeline.
func NewLoggingPipeline(logger *slog.Logger) *LoggingPipeline {
	return &LoggingPipeline{logger: logger.With(slog.String("component", "trade_pipeline"))}
}

func (p *LoggingPipeline) PlaceSell(ctx context.Context, pos domain.Position) error {
	p.log(ctx, "placeSell", pos)
	return nil
}

func (p *LoggingPipeline) ConfirmBuy(ctx context.Context, pos domain.Position) error {
	p.log(ctx, "confirmBuy", pos)
	return nil
}

func (p *LoggingPipeline) ConfirmSell(ctx context.Context, pos domain.Position) error {
	p.log(ctx, "confirmSell", pos)
	return nil
}

func (p *LoggingPipeline) log(ctx context.Context, action string, pos domain.Position) {
	p.logger.InfoContext(ctx, "trade action scheduled",
		slog.String("action", action),
		slog.String("positionID", pos.ID),
		slog.String("vsTokenAmt", pos.VsTokenAmt.String()))
}
