// Package executor consumes the action batches emitted by pair actors and
// hands them to the external trade pipeline under a concurrency bound, so a
// price crash that triggers many simultaneous closes cannot fan out
// unbounded.
package executor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

// TradePipeline is the external system that actually places and confirms
// orders. The executor only schedules work onto it.
type TradePipeline interface {
	PlaceSell(ctx context.Context, pos domain.Position) error
	ConfirmBuy(ctx context.Context, pos domain.Position) error
	ConfirmSell(ctx context.Context, pos domain.Position) error
}

// Executor reads action batches from a channel, deduplicates actions across
// ticks, and dispatches them to the trade pipeline with at most
// maxConcurrent calls in flight. Closes go out largest vsToken amount first,
// so the most capital at risk is protected soonest.
type Executor struct {
	batches  <-chan domain.ActionBatch
	pipeline TradePipeline
	dedup    *Dedup
	sem      *semaphore.Weighted
	logger   *slog.Logger

	cleanupInterval time.Duration
}

// NewExecutor creates an Executor that reads batches from batches and
// dispatches through pipeline with the given concurrency bound.
func NewExecutor(batches <-chan domain.ActionBatch, pipeline TradePipeline, maxConcurrent int64, logger *slog.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Executor{
		batches:         batches,
		pipeline:        pipeline,
		dedup:           NewDedup(2 * time.Minute),
		sem:             semaphore.NewWeighted(maxConcurrent),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run starts the executor's main loop. It processes batches until the
// context is cancelled, at which point it drains any batches already
// buffered in the channel and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()

		case batch, ok := <-e.batches:
			if !ok {
				return nil
			}
			e.process(ctx, batch)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// action is one unit of dispatch.
type action struct {
	kind string
	pos  domain.Position
	call func(context.Context, domain.Position) error
}

// process dispatches one batch and waits for its completion.
func (e *Executor) process(ctx context.Context, batch domain.ActionBatch) {
	// Largest capital at risk first.
	toClose := append([]domain.Position(nil), batch.PositionsToClose...)
	sort.SliceStable(toClose, func(i, j int) bool {
		return decimal.Cmp(toClose[i].VsTokenAmt, toClose[j].VsTokenAmt) > 0
	})

	var actions []action
	for _, pos := range toClose {
		actions = append(actions, action{kind: "close", pos: pos, call: e.pipeline.PlaceSell})
	}
	for _, pos := range batch.BuysToConfirm {
		actions = append(actions, action{kind: "confirmBuy", pos: pos, call: e.pipeline.ConfirmBuy})
	}
	for _, pos := range batch.SellsToConfirm {
		actions = append(actions, action{kind: "confirmSell", pos: pos, call: e.pipeline.ConfirmSell})
	}

	var wg sync.WaitGroup
	for _, a := range actions {
		if e.dedup.IsDuplicate(a.kind + ":" + a.pos.ID) {
			continue
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(a action) {
			defer wg.Done()
			defer e.sem.Release(1)
			if err := a.call(ctx, a.pos); err != nil {
				e.logger.Error("executor: dispatch failed",
					slog.String("action", a.kind),
					slog.String("positionID", a.pos.ID),
					slog.String("error", err.Error()))
			}
		}(a)
	}
	wg.Wait()
}

// drain processes batches already buffered in the channel after context
// cancellation, so decisions made before shutdown are not silently dropped.
func (e *Executor) drain() {
	for {
		select {
		case batch, ok := <-e.batches:
			if !ok {
				return
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(drainCtx, batch)
			cancel()
		default:
			return
		}
	}
}

// SetDedupTTL replaces the dedup instance with a new one using the given
// TTL. Useful for tests and runtime reconfiguration.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}
