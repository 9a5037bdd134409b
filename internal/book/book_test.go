package book

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/state"
)

func amt(t *testing.T, s string) decimal.Amount {
	t.Helper()
	a, err := decimal.Parse(s)
	require.NoError(t, err)
	return a
}

func newTestBook() *PositionBook {
	b := NewPositionBook()
	n := 0
	b.newID = func() string {
		n++
		return fmt.Sprintf("pos-%03d", n)
	}
	return b
}

func submitAndFill(t *testing.T, b *PositionBook, fill string, triggerPct float64) domain.Position {
	t.Helper()
	pos := b.SubmitBuy(SubmitBuyRequest{
		UserID:              7,
		Token:               domain.TokenInfo{Address: "tok", Symbol: "TOK"},
		VsToken:             domain.TokenInfo{Address: "vs", Symbol: "VS"},
		VsTokenAmt:          amt(t, "1000"),
		TriggerPercent:      triggerPct,
		SellSlippagePercent: 1,
	})
	require.True(t, b.ConfirmBuy(pos.ID, amt(t, fill), amt(t, "10")))
	got, ok := b.Get(pos.ID)
	require.True(t, ok)
	return got
}

func TestBuyLifecycle(t *testing.T) {
	b := newTestBook()

	pos := b.SubmitBuy(SubmitBuyRequest{UserID: 1, VsTokenAmt: amt(t, "50"), TriggerPercent: 10})
	got, ok := b.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPendingBuy, got.Status)
	assert.True(t, got.FillPrice.IsZero())

	require.True(t, b.ConfirmBuy(pos.ID, amt(t, "2.5"), amt(t, "20")))
	got, _ = b.Get(pos.ID)
	assert.Equal(t, domain.StatusStaged, got.Status)
	assert.Equal(t, 0, decimal.Cmp(amt(t, "2.5"), got.FillPrice))
	assert.Equal(t, 0, decimal.Cmp(amt(t, "2.5"), got.PeakPrice))
	assert.Equal(t, 0, decimal.Cmp(amt(t, "20"), got.TokenAmt))

	// Confirming twice is rejected.
	assert.False(t, b.ConfirmBuy(pos.ID, amt(t, "3"), amt(t, "20")))

	other := b.SubmitBuy(SubmitBuyRequest{UserID: 1})
	require.True(t, b.FailBuy(other.ID))
	_, ok = b.Get(other.ID)
	assert.False(t, ok, "failed buy leaves no trace")
	assert.False(t, b.FailBuy(pos.ID), "only pending buys can fail")
}

func TestTrailingStopScenario(t *testing.T) {
	b := newTestBook()
	pos := submitAndFill(t, b, "100", 10)

	// First tick folds staged into open; 95 is only a 5% dip.
	batch := b.OnPriceTick(amt(t, "95"))
	assert.Empty(t, batch.PositionsToClose)
	got, _ := b.Get(pos.ID)
	assert.Equal(t, domain.StatusOpen, got.Status)

	// Rally: peak advances to 120 and is persisted on the record.
	batch = b.OnPriceTick(amt(t, "120"))
	assert.Empty(t, batch.PositionsToClose)
	got, _ = b.Get(pos.ID)
	assert.Equal(t, 0, decimal.Cmp(amt(t, "120"), got.PeakPrice))

	// 105 is 12.5% below the 120 peak: close fires.
	batch = b.OnPriceTick(amt(t, "105"))
	require.Len(t, batch.PositionsToClose, 1)
	assert.Equal(t, pos.ID, batch.PositionsToClose[0].ID)
	assert.Equal(t, domain.StatusClosing, batch.PositionsToClose[0].Status)
	assert.False(t, batch.PositionsToClose[0].SellConfirmed)

	// The next tick reports it as an unconfirmed sell, not a fresh close.
	batch = b.OnPriceTick(amt(t, "105"))
	assert.Empty(t, batch.PositionsToClose)
	require.Len(t, batch.SellsToConfirm, 1)
	assert.Equal(t, pos.ID, batch.SellsToConfirm[0].ID)
}

func TestTickReportsPendingBuys(t *testing.T) {
	b := newTestBook()
	pending := b.SubmitBuy(SubmitBuyRequest{UserID: 1, TriggerPercent: 10})
	submitAndFill(t, b, "100", 10)

	batch := b.OnPriceTick(amt(t, "100"))
	require.Len(t, batch.BuysToConfirm, 1)
	assert.Equal(t, pending.ID, batch.BuysToConfirm[0].ID)
	assert.Empty(t, batch.PositionsToClose)
}

func TestManualCloseOfStagedPosition(t *testing.T) {
	b := newTestBook()
	pos := submitAndFill(t, b, "100", 10)

	// No tick has run: the position is still staged.
	closing, ok := b.ManualClose(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosing, closing.Status)

	// Idempotent on repeat.
	again, ok := b.ManualClose(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosing, again.Status)

	// A later tick never re-evaluates it against the peak index.
	batch := b.OnPriceTick(amt(t, "1"))
	assert.Empty(t, batch.PositionsToClose)
	require.Len(t, batch.SellsToConfirm, 1)
}

func TestMarkClosedMovesToHistory(t *testing.T) {
	b := newTestBook()
	pos := submitAndFill(t, b, "100", 10)
	_, ok := b.ManualClose(pos.ID)
	require.True(t, ok)

	closed, ok := b.MarkClosed(pos.ID, amt(t, "-25"))
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.True(t, closed.SellConfirmed)
	assert.Equal(t, 0, decimal.Cmp(amt(t, "-25"), closed.NetPNL))

	got, ok := b.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Empty(t, b.List(), "closed positions leave the live collection")
	require.Len(t, b.ListClosedForUser(7), 1)

	_, ok = b.MarkClosed(pos.ID, amt(t, "0"))
	assert.False(t, ok, "closing is a one-way door")
}

func TestMarkOpenReopensFailedSell(t *testing.T) {
	b := newTestBook()
	pos := submitAndFill(t, b, "100", 10)
	b.OnPriceTick(amt(t, "120"))
	_, ok := b.ManualClose(pos.ID)
	require.True(t, ok)

	require.True(t, b.MarkOpen(pos.ID))
	got, _ := b.Get(pos.ID)
	assert.Equal(t, domain.StatusOpen, got.Status)

	// The reopened position trails from its recorded 120 peak again.
	batch := b.OnPriceTick(amt(t, "105"))
	require.Len(t, batch.PositionsToClose, 1)
	assert.Equal(t, pos.ID, batch.PositionsToClose[0].ID)
}

func TestDeactivateReactivate(t *testing.T) {
	b := newTestBook()
	pos := submitAndFill(t, b, "100", 10)
	b.OnPriceTick(amt(t, "120"))

	require.True(t, b.Deactivate(pos.ID))
	require.Len(t, b.ListDeactivated(), 1)

	// Deactivated positions ignore price, even a crash.
	batch := b.OnPriceTick(amt(t, "1"))
	assert.Empty(t, batch.PositionsToClose)

	// Reactivate with a fresh baseline below fill: floored at fill price.
	require.True(t, b.Reactivate(pos.ID, amt(t, "50")))
	got, _ := b.Get(pos.ID)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, 0, decimal.Cmp(amt(t, "100"), got.PeakPrice))

	assert.False(t, b.Reactivate(pos.ID, decimal.Zero()), "only deactivated positions reactivate")
}

func TestUpdateTriggerPercentOutcomes(t *testing.T) {
	b := newTestBook()
	pos := submitAndFill(t, b, "100", 50)

	assert.Equal(t, TriggerInvalidPercent, b.UpdateTriggerPercent(pos.ID, 0))
	assert.Equal(t, TriggerInvalidPercent, b.UpdateTriggerPercent(pos.ID, 120))
	assert.Equal(t, TriggerPositionNotFound, b.UpdateTriggerPercent("nope", 10))

	assert.Equal(t, TriggerUpdated, b.UpdateTriggerPercent(pos.ID, 10))
	// The tightened trigger is live in the peak index immediately.
	batch := b.OnPriceTick(amt(t, "89"))
	require.Len(t, batch.PositionsToClose, 1)

	assert.Equal(t, TriggerPositionClosing, b.UpdateTriggerPercent(pos.ID, 20))
	_, ok := b.MarkClosed(pos.ID, amt(t, "0"))
	require.True(t, ok)
	assert.Equal(t, TriggerPositionClosed, b.UpdateTriggerPercent(pos.ID, 20))
}

func TestSellFailureAutoDoublesSlippage(t *testing.T) {
	b := newTestBook()
	pos := b.SubmitBuy(SubmitBuyRequest{UserID: 1, SellSlippagePercent: 30})
	require.True(t, b.SetSellAutoDouble(pos.ID, true))

	got, ok := b.IncrementSellFailures(pos.ID)
	require.True(t, ok)
	assert.Equal(t, 1, got.SellFailureCount)
	assert.Equal(t, 60.0, got.SellSlippagePercent)

	got, _ = b.IncrementSellFailures(pos.ID)
	assert.Equal(t, 100.0, got.SellSlippagePercent, "doubling caps at 100")

	require.True(t, b.SetSellAutoDouble(pos.ID, false))
	got, _ = b.IncrementSellFailures(pos.ID)
	assert.Equal(t, 3, got.SellFailureCount)
	assert.Equal(t, 100.0, got.SellSlippagePercent, "no doubling when disabled")
}

func TestPartitionInvariant(t *testing.T) {
	b := newTestBook()

	ids := map[string]struct{}{}
	a := submitAndFill(t, b, "100", 10)
	ids[a.ID] = struct{}{}
	pending := b.SubmitBuy(SubmitBuyRequest{UserID: 2})
	ids[pending.ID] = struct{}{}
	deact := submitAndFill(t, b, "100", 10)
	ids[deact.ID] = struct{}{}
	require.True(t, b.Deactivate(deact.ID))

	b.OnPriceTick(amt(t, "120"))
	_, ok := b.ManualClose(a.ID)
	require.True(t, ok)
	_, ok = b.MarkClosed(a.ID, amt(t, "5"))
	require.True(t, ok)

	// Every ID ever created appears in exactly one partition.
	seen := map[string]int{}
	for _, p := range b.List() {
		seen[p.ID]++
	}
	for _, p := range b.ListClosedForUser(7) {
		seen[p.ID]++
	}
	for id := range ids {
		assert.Equal(t, 1, seen[id], "id %s", id)
	}

	counts := b.Counts()
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.ByStatus[domain.StatusClosed])
	assert.Equal(t, 1, counts.ByStatus[domain.StatusPendingBuy])
	assert.Equal(t, 1, counts.ByStatus[domain.StatusDeactivated])
	assert.Equal(t, 2, counts.ByUser[7])
}

func TestInsertUpdateRemove(t *testing.T) {
	b := newTestBook()
	pos := domain.Position{
		ID:             "manual-1",
		UserID:         9,
		FillPrice:      amt(t, "10"),
		PeakPrice:      amt(t, "12"),
		TriggerPercent: 10,
		Status:         domain.StatusOpen,
	}
	require.NoError(t, b.Insert(pos))
	assert.ErrorIs(t, b.Insert(pos), domain.ErrAlreadyExists)

	// Inserted open position trails from its recorded peak.
	batch := b.OnPriceTick(amt(t, "10.5"))
	require.Len(t, batch.PositionsToClose, 1)

	pos.Status = domain.StatusOpen
	require.True(t, b.MarkOpen("manual-1"))

	removed, ok := b.Remove("manual-1")
	require.True(t, ok)
	assert.Equal(t, "manual-1", removed.ID)
	_, ok = b.Get("manual-1")
	assert.False(t, ok)
	assert.False(t, b.Update(pos), "update of a removed position fails")
}

func TestRoundTripThroughStorage(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemStore()

	b := newTestBook()
	open := submitAndFill(t, b, "100", 10)
	b.OnPriceTick(amt(t, "120"))
	closedPos := submitAndFill(t, b, "50", 5)
	_, ok := b.ManualClose(closedPos.ID)
	require.True(t, ok)
	_, ok = b.MarkClosed(closedPos.ID, amt(t, "3"))
	require.True(t, ok)
	require.NoError(t, b.Flush(ctx, store))

	snapshot, err := store.Snapshot(ctx, "")
	require.NoError(t, err)

	fresh := NewPositionBook()
	require.NoError(t, fresh.Initialize(snapshot))

	got, ok := fresh.Get(open.ID)
	require.True(t, ok)
	assert.Equal(t, 0, decimal.Cmp(amt(t, "120"), got.PeakPrice))
	gotClosed, ok := fresh.Get(closedPos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, gotClosed.Status)

	// The rebuilt index trails from the persisted peak.
	batch := fresh.OnPriceTick(amt(t, "105"))
	require.Len(t, batch.PositionsToClose, 1)
	assert.Equal(t, open.ID, batch.PositionsToClose[0].ID)
}

func TestDeleteAllWipesEverything(t *testing.T) {
	b := newTestBook()
	submitAndFill(t, b, "100", 10)
	pos := submitAndFill(t, b, "50", 10)
	_, ok := b.ManualClose(pos.ID)
	require.True(t, ok)
	_, ok = b.MarkClosed(pos.ID, amt(t, "0"))
	require.True(t, ok)

	b.DeleteAll()
	assert.Empty(t, b.List())
	assert.Equal(t, 0, b.Counts().Total)
	assert.Empty(t, b.OnPriceTick(amt(t, "1")).PositionsToClose)
}
