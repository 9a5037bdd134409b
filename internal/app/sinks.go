package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/trailbot/internal/actor"
	"github.com/alanyoungcy/trailbot/internal/config"
	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/feed"
	"github.com/alanyoungcy/trailbot/internal/oracle"
)

// multiSink fans one closed position out to every configured sink. Sinks fail
// independently; all failures are joined.
type multiSink []domain.ClosedPositionSink

func (s multiSink) PositionClosed(ctx context.Context, pairID string, pos domain.Position) error {
	var errs []error
	for _, sink := range s {
		if err := sink.PositionClosed(ctx, pairID, pos); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fanoutSink collapses the sink list to what the actor expects: nil for none,
// the sink itself for one, a fan-out otherwise.
func fanoutSink(sinks []domain.ClosedPositionSink) domain.ClosedPositionSink {
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return multiSink(sinks)
	}
}

func makeOracle(cfg *config.Config) domain.PriceOracle {
	return oracle.NewClient(cfg.Oracle.PriceHost, cfg.Oracle.Timeout.Duration)
}

func makeResolver(cfg *config.Config) domain.TokenResolver {
	return oracle.NewResolver(cfg.Oracle.TokenHost, cfg.Oracle.Timeout.Duration)
}

// priceUpdateHandler routes pushed price frames into the owning pair actor as
// updatePrice requests, so feed and RPC prices go through the same monotonic
// acceptance.
func priceUpdateHandler(registry *actor.Registry, logger *slog.Logger) feed.UpdateHandler {
	log := logger.With(slog.String("component", "feed_router"))
	return func(ctx context.Context, u feed.PriceUpdate) {
		payload, err := json.Marshal(struct {
			TokenAddress   string         `json:"tokenAddress"`
			VsTokenAddress string         `json:"vsTokenAddress"`
			Price          decimal.Amount `json:"price"`
			ObservedAtMS   int64          `json:"observedAtMS"`
		}{u.TokenAddress, u.VsTokenAddress, u.Price, u.ObservedAtMS})
		if err != nil {
			log.ErrorContext(ctx, "encode price frame", slog.String("error", err.Error()))
			return
		}

		a := registry.Get(u.TokenAddress, u.VsTokenAddress)
		if _, err := a.Handle(ctx, actor.MethodUpdatePrice, payload); err != nil {
			log.WarnContext(ctx, "price update rejected",
				slog.String("token", u.TokenAddress),
				slog.String("error", err.Error()))
		}
	}
}
