// Package actor implements the per-pair unit of execution: one Actor per
// (token, vsToken) pair owning that pair's position book and price cache,
// processing one request at a time, hydrating all state once on cold start
// and flushing every owned component after every request.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/trailbot/internal/book"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/state"
	"github.com/alanyoungcy/trailbot/internal/tracker"
)

// AdminGate decides whether a user may run destructive admin operations.
// Denial is expressed as a silent no-op, never an error, so the gate's
// existence leaks nothing to probing callers.
type AdminGate interface {
	CanWipe(userID int64) bool
}

// Deps carries the external collaborators an actor consumes.
type Deps struct {
	Store    domain.KVStore
	Oracle   domain.PriceOracle
	Resolver domain.TokenResolver
	Admin    AdminGate
	// Sink receives closed positions for archival/notification. Optional;
	// its failures are logged and never affect the close.
	Sink domain.ClosedPositionSink
	// Batches receives tracker output for the trade executor. Optional; the
	// batch is also returned to the RPC caller either way.
	Batches chan<- domain.ActionBatch
	Logger  *slog.Logger
}

// Actor serializes all requests for one token pair against private durable
// state. It moves from hydrating to ready on the first request, when a
// single bulk snapshot populates every persistent component; no request is
// processed against partially-loaded state.
type Actor struct {
	mu       sync.Mutex
	hydrated bool

	deps   Deps
	logger *slog.Logger

	tokenAddress   *state.Cell[string]
	vsTokenAddress *state.Cell[string]
	tokenInfo      *state.Cell[*domain.TokenInfo]
	heartbeatMS    *state.Cell[int64]

	book  *book.PositionBook
	price *tracker.PriceCache

	nowMS func() int64
}

// New creates an actor in the hydrating state. deps.Store must already be
// namespaced to this pair.
func New(deps Deps) *Actor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		deps:           deps,
		logger:         logger.With(slog.String("component", "actor")),
		tokenAddress:   state.NewCell("tokenAddress", ""),
		vsTokenAddress: state.NewCell("vsTokenAddress", ""),
		tokenInfo:      state.NewCell[*domain.TokenInfo]("tokenInfo", nil),
		heartbeatMS:    state.NewCell[int64]("lastHeartbeat", 0),
		book:           book.NewPositionBook(),
		price:          tracker.NewPriceCache(),
		nowMS:          func() int64 { return time.Now().UnixMilli() },
	}
}

// hydrate performs the one-time bulk load. Called under mu.
func (a *Actor) hydrate(ctx context.Context) error {
	if a.hydrated {
		return nil
	}
	snapshot, err := a.deps.Store.Snapshot(ctx, "")
	if err != nil {
		return fmt.Errorf("actor: load snapshot: %w", err)
	}
	if err := errors.Join(
		a.tokenAddress.Initialize(snapshot),
		a.vsTokenAddress.Initialize(snapshot),
		a.tokenInfo.Initialize(snapshot),
		a.heartbeatMS.Initialize(snapshot),
		a.price.Initialize(snapshot),
		a.book.Initialize(snapshot),
	); err != nil {
		return fmt.Errorf("actor: hydrate: %w", err)
	}
	a.hydrated = true
	a.logger.InfoContext(ctx, "actor: hydrated",
		slog.String("token", a.tokenAddress.Get()),
		slog.String("vsToken", a.vsTokenAddress.Get()),
		slog.Int("keys", len(snapshot)))
	return nil
}

// checkPairBinding binds the pair on the first bound request and enforces it
// on every later one. Heartbeat-class requests never reach here.
func (a *Actor) checkPairBinding(token, vsToken string) error {
	if token == "" || vsToken == "" {
		return fmt.Errorf("actor: missing token pair: %w", domain.ErrInvalidRequest)
	}
	bound := a.tokenAddress.Get()
	if bound == "" {
		a.tokenAddress.Set(token)
		a.vsTokenAddress.Set(vsToken)
		return nil
	}
	if bound != token || a.vsTokenAddress.Get() != vsToken {
		return fmt.Errorf("actor: got %s/%s, bound to %s/%s: %w",
			token, vsToken, bound, a.vsTokenAddress.Get(), domain.ErrPairMismatch)
	}
	return nil
}

// resolvedTokenInfo returns the pair's token metadata, resolving and caching
// it once per actor lifetime.
func (a *Actor) resolvedTokenInfo(ctx context.Context) (domain.TokenInfo, error) {
	if info := a.tokenInfo.Get(); info != nil {
		return *info, nil
	}
	token := a.tokenAddress.Get()
	if token == "" {
		return domain.TokenInfo{}, domain.ErrNotInitialized
	}
	info, err := a.deps.Resolver.ResolveToken(ctx, token)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("actor: resolve token %s: %w", token, err)
	}
	a.tokenInfo.Set(&info)
	return info, nil
}

// flushAll flushes every persistent component, attempting each one even when
// another fails. There is no cross-component transaction; a partial flush
// leaves components unevenly persisted and is logged as critical.
func (a *Actor) flushAll(ctx context.Context) {
	type component struct {
		name  string
		flush func(context.Context, domain.KVStore) error
	}
	components := []component{
		{"tokenAddress", a.tokenAddress.Flush},
		{"vsTokenAddress", a.vsTokenAddress.Flush},
		{"tokenInfo", a.tokenInfo.Flush},
		{"heartbeat", a.heartbeatMS.Flush},
		{"priceCache", a.price.Flush},
		{"positionBook", a.book.Flush},
	}
	for _, c := range components {
		if err := c.flush(ctx, a.deps.Store); err != nil {
			a.logger.ErrorContext(ctx, "actor: flush failed",
				slog.String("part", c.name),
				slog.String("error", err.Error()))
		}
	}
}

// pairID renders the bound pair for logging and archive paths.
func (a *Actor) pairID() string {
	return a.tokenAddress.Get() + "-" + a.vsTokenAddress.Get()
}

// emitBatch hands tracker output to the execution channel without blocking
// the actor. A full channel drops the batch; the next tick re-emits the same
// outstanding work.
func (a *Actor) emitBatch(ctx context.Context, batch domain.ActionBatch) {
	if a.deps.Batches == nil || batch.Empty() {
		return
	}
	select {
	case a.deps.Batches <- batch:
	default:
		a.logger.WarnContext(ctx, "actor: execution channel full, batch dropped",
			slog.String("pair", a.pairID()))
	}
}

// notifyClosed hands a freshly closed position to the sink, if configured.
func (a *Actor) notifyClosed(ctx context.Context, pos domain.Position) {
	if a.deps.Sink == nil {
		return
	}
	if err := a.deps.Sink.PositionClosed(ctx, a.pairID(), pos); err != nil {
		a.logger.WarnContext(ctx, "actor: closed-position sink failed",
			slog.String("positionID", pos.ID),
			slog.String("error", err.Error()))
	}
}
