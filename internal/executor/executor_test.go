package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

type fakePipeline struct {
	mu        sync.Mutex
	sells     []string
	buys      []string
	confirms  []string
	inFlight  atomic.Int64
	maxSeen   atomic.Int64
	callDelay time.Duration
}

func (p *fakePipeline) track() func() {
	n := p.inFlight.Add(1)
	for {
		max := p.maxSeen.Load()
		if n <= max || p.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	if p.callDelay > 0 {
		time.Sleep(p.callDelay)
	}
	return func() { p.inFlight.Add(-1) }
}

func (p *fakePipeline) PlaceSell(ctx context.Context, pos domain.Position) error {
	defer p.track()()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sells = append(p.sells, pos.ID)
	return nil
}

func (p *fakePipeline) ConfirmBuy(ctx context.Context, pos domain.Position) error {
	defer p.track()()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buys = append(p.buys, pos.ID)
	return nil
}

func (p *fakePipeline) ConfirmSell(ctx context.Context, pos domain.Position) error {
	defer p.track()()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirms = append(p.confirms, pos.ID)
	return nil
}

func position(id string, vsAmt int64) domain.Position {
	return domain.Position{ID: id, VsTokenAmt: decimal.FromInt64(vsAmt)}
}

func TestProcessOrdersLargestFirst(t *testing.T) {
	pipe := &fakePipeline{}
	e := NewExecutor(nil, pipe, 1, slog.New(slog.DiscardHandler))

	e.process(context.Background(), domain.ActionBatch{
		PositionsToClose: []domain.Position{
			position("small", 10),
			position("large", 1000),
			position("mid", 100),
		},
	})

	assert.Equal(t, []string{"large", "mid", "small"}, pipe.sells)
}

func TestProcessBoundsConcurrency(t *testing.T) {
	pipe := &fakePipeline{callDelay: 10 * time.Millisecond}
	e := NewExecutor(nil, pipe, 2, slog.New(slog.DiscardHandler))

	var batch domain.ActionBatch
	for i := 0; i < 10; i++ {
		batch.BuysToConfirm = append(batch.BuysToConfirm, position(string(rune('a'+i)), 1))
	}
	e.process(context.Background(), batch)

	assert.Len(t, pipe.buys, 10)
	assert.LessOrEqual(t, pipe.maxSeen.Load(), int64(2))
}

func TestProcessDeduplicatesAcrossTicks(t *testing.T) {
	pipe := &fakePipeline{}
	e := NewExecutor(nil, pipe, 4, slog.New(slog.DiscardHandler))

	batch := domain.ActionBatch{SellsToConfirm: []domain.Position{position("p1", 1)}}
	e.process(context.Background(), batch)
	e.process(context.Background(), batch)
	assert.Len(t, pipe.confirms, 1, "a re-emitted action within the TTL is dropped")

	// With an expired TTL the action goes out again.
	e.SetDedupTTL(0)
	e.process(context.Background(), batch)
	assert.Len(t, pipe.confirms, 2)
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	pipe := &fakePipeline{}
	batches := make(chan domain.ActionBatch, 2)
	e := NewExecutor(batches, pipe, 4, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	batches <- domain.ActionBatch{PositionsToClose: []domain.Position{position("x", 5)}}
	require.Eventually(t, func() bool {
		pipe.mu.Lock()
		defer pipe.mu.Unlock()
		return len(pipe.sells) == 1
	}, time.Second, 5*time.Millisecond)

	// A batch still buffered at shutdown is drained, not dropped.
	batches <- domain.ActionBatch{PositionsToClose: []domain.Position{position("y", 5)}}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	assert.Len(t, pipe.sells, 2)
}
