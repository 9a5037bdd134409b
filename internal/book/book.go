// Package book implements the position lifecycle for one token pair: a
// single tagged position map whose status field partitions positions across
// pending buy, staged, open, closing and deactivated, a separate collection
// for terminal closed positions, and the peak index that drives trailing
// stop evaluation. All operations are synchronous in-memory transitions;
// durability happens at Flush.
package book

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/state"
	"github.com/alanyoungcy/trailbot/internal/tracker"
)

// TriggerUpdateResult describes the outcome of a trigger-percent edit.
type TriggerUpdateResult int

const (
	TriggerUpdated TriggerUpdateResult = iota
	TriggerInvalidPercent
	TriggerPositionNotFound
	TriggerPositionClosing
	TriggerPositionClosed
)

// maxSlippagePercent caps the auto-doubling of sell slippage.
const maxSlippagePercent = 100

// SubmitBuyRequest carries everything a new position needs before its buy is
// filled.
type SubmitBuyRequest struct {
	UserID              int64              `json:"userID"`
	ChatID              int64              `json:"chatID,omitempty"`
	Token               domain.TokenInfo   `json:"token"`
	VsToken             domain.TokenInfo   `json:"vsToken"`
	VsTokenAmt          decimal.Amount     `json:"vsTokenAmt"`
	TriggerPercent      float64            `json:"triggerPercent"`
	SellSlippagePercent float64            `json:"sellSlippagePercent"`
	SellAutoDouble      bool               `json:"sellAutoDoubleSlippage"`
	PriorityFee         domain.PriorityFee `json:"priorityFee"`
}

// PositionBook owns every position of one pair. Live positions (every
// non-terminal status) share one collection so a position can only ever
// carry one status; closed positions move to their own collection and are
// retained indefinitely.
type PositionBook struct {
	live   *state.Map[domain.Position]
	closed *state.Map[domain.Position]
	peaks  *tracker.PeakTracker

	newID func() string
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{
		live:   state.NewMap[domain.Position]("positions"),
		closed: state.NewMap[domain.Position]("closedPositions"),
		peaks:  tracker.NewPeakTracker(),
		newID:  uuid.NewString,
	}
}

// Initialize hydrates both collections from the actor's bulk snapshot and
// rebuilds the peak index from the staged and open records. A persisted peak
// below the fill price (possible only through corruption) is floored at the
// fill price.
func (b *PositionBook) Initialize(snapshot map[string][]byte) error {
	if err := b.live.Initialize(snapshot); err != nil {
		return err
	}
	if err := b.closed.Initialize(snapshot); err != nil {
		return err
	}
	b.peaks = tracker.NewPeakTracker()
	b.live.Range(func(id string, pos domain.Position) bool {
		if pos.Status == domain.StatusStaged || pos.Status == domain.StatusOpen {
			b.peaks.Register(id, decimal.Max(pos.PeakPrice, pos.FillPrice), pos.TriggerPercent)
		}
		return true
	})
	return nil
}

// Flush persists both collections, attempting each even if the other fails.
func (b *PositionBook) Flush(ctx context.Context, store domain.KVStore) error {
	return errors.Join(b.live.Flush(ctx, store), b.closed.Flush(ctx, store))
}

// SubmitBuy records a new pending buy and returns it with its generated ID.
func (b *PositionBook) SubmitBuy(req SubmitBuyRequest) domain.Position {
	pos := domain.Position{
		ID:                  b.newID(),
		UserID:              req.UserID,
		ChatID:              req.ChatID,
		Token:               req.Token,
		VsToken:             req.VsToken,
		VsTokenAmt:          req.VsTokenAmt,
		TriggerPercent:      req.TriggerPercent,
		SellSlippagePercent: req.SellSlippagePercent,
		SellAutoDouble:      req.SellAutoDouble,
		PriorityFee:         req.PriorityFee,
		Status:              domain.StatusPendingBuy,
	}
	b.live.Set(pos.ID, pos)
	return pos
}

// ConfirmBuy moves a pending buy to staged with its fill, anchoring the peak
// at the fill price. Reports false if the position is missing or not pending.
func (b *PositionBook) ConfirmBuy(id string, fillPrice, tokenAmt decimal.Amount) bool {
	pos, ok := b.live.Get(id)
	if !ok || pos.Status != domain.StatusPendingBuy {
		return false
	}
	pos.Status = domain.StatusStaged
	pos.FillPrice = fillPrice
	pos.PeakPrice = fillPrice
	pos.TokenAmt = tokenAmt
	b.live.Set(id, pos)
	b.peaks.Register(id, fillPrice, pos.TriggerPercent)
	return true
}

// FailBuy removes a pending buy with no further trace.
func (b *PositionBook) FailBuy(id string) bool {
	pos, ok := b.live.Get(id)
	if !ok || pos.Status != domain.StatusPendingBuy {
		return false
	}
	b.live.Delete(id)
	return true
}

// Insert adds a fully-formed position, indexing its peak when it is staged
// or open. Used by the raw insert RPC; SubmitBuy is the normal entry point.
func (b *PositionBook) Insert(pos domain.Position) error {
	if _, ok := b.live.Get(pos.ID); ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := b.closed.Get(pos.ID); ok {
		return domain.ErrAlreadyExists
	}
	b.live.Set(pos.ID, pos)
	b.syncPeak(pos)
	return nil
}

// Update replaces an existing live position wholesale and re-syncs the peak
// index to its (possibly changed) status.
func (b *PositionBook) Update(pos domain.Position) bool {
	if _, ok := b.live.Get(pos.ID); !ok {
		return false
	}
	b.live.Set(pos.ID, pos)
	b.syncPeak(pos)
	return true
}

func (b *PositionBook) syncPeak(pos domain.Position) {
	if pos.Status == domain.StatusStaged || pos.Status == domain.StatusOpen {
		b.peaks.Register(pos.ID, decimal.Max(pos.PeakPrice, pos.FillPrice), pos.TriggerPercent)
	} else {
		b.peaks.Remove(pos.ID)
	}
}

// Remove deletes a position from whichever collection holds it.
func (b *PositionBook) Remove(id string) (domain.Position, bool) {
	if pos, ok := b.live.Get(id); ok {
		b.live.Delete(id)
		b.peaks.Remove(id)
		return pos, true
	}
	if pos, ok := b.closed.Get(id); ok {
		b.closed.Delete(id)
		return pos, true
	}
	return domain.Position{}, false
}

// Get returns a position from either collection.
func (b *PositionBook) Get(id string) (domain.Position, bool) {
	if pos, ok := b.live.Get(id); ok {
		return pos, true
	}
	return b.closed.Get(id)
}

// OnPriceTick is the single integration point between the lifecycle
// partitions and the peak index. In order: staged positions fold into open;
// the new price advances every peak below it (persisting the moved peaks on
// the records); trigger crossings move open positions to closing. The
// returned batch also carries the outstanding pending buys and unconfirmed
// sells so the executor can reconcile them.
func (b *PositionBook) OnPriceTick(latest decimal.Amount) domain.ActionBatch {
	b.live.Range(func(id string, pos domain.Position) bool {
		if pos.Status == domain.StatusStaged {
			pos.Status = domain.StatusOpen
			b.live.Set(id, pos)
		}
		return true
	})

	for _, id := range b.peaks.Update(latest) {
		if pos, ok := b.live.Get(id); ok {
			pos.PeakPrice = latest
			b.live.Set(id, pos)
		}
	}

	var batch domain.ActionBatch
	triggered := make(map[string]struct{})
	for _, id := range b.peaks.CollectTriggered(latest) {
		pos, ok := b.live.Get(id)
		if !ok || pos.Status != domain.StatusOpen {
			continue
		}
		pos.Status = domain.StatusClosing
		pos.SellConfirmed = false
		b.live.Set(id, pos)
		triggered[id] = struct{}{}
		batch.PositionsToClose = append(batch.PositionsToClose, pos)
	}

	b.live.Range(func(id string, pos domain.Position) bool {
		switch pos.Status {
		case domain.StatusPendingBuy:
			batch.BuysToConfirm = append(batch.BuysToConfirm, pos)
		case domain.StatusClosing:
			if _, fresh := triggered[id]; !fresh && !pos.SellConfirmed {
				batch.SellsToConfirm = append(batch.SellsToConfirm, pos)
			}
		}
		return true
	})

	sortByID(batch.PositionsToClose)
	sortByID(batch.BuysToConfirm)
	sortByID(batch.SellsToConfirm)
	return batch
}

// ManualClose moves a staged or open position to closing regardless of
// price, dropping its peak record. Already closing or closed positions are
// an idempotent no-op.
func (b *PositionBook) ManualClose(id string) (domain.Position, bool) {
	if pos, ok := b.closed.Get(id); ok {
		return pos, true
	}
	pos, ok := b.live.Get(id)
	if !ok {
		return domain.Position{}, false
	}
	switch pos.Status {
	case domain.StatusClosing:
		return pos, true
	case domain.StatusStaged, domain.StatusOpen:
		pos.Status = domain.StatusClosing
		pos.SellConfirmed = false
		b.live.Set(id, pos)
		b.peaks.Remove(id)
		return pos, true
	default:
		return domain.Position{}, false
	}
}

// MarkClosed records the sell confirmation: the position leaves the live
// collection and joins the closed history with its net PNL.
func (b *PositionBook) MarkClosed(id string, netPNL decimal.Amount) (domain.Position, bool) {
	pos, ok := b.live.Get(id)
	if !ok || pos.Status != domain.StatusClosing {
		return domain.Position{}, false
	}
	pos.Status = domain.StatusClosed
	pos.SellConfirmed = true
	pos.NetPNL = netPNL
	b.live.Delete(id)
	b.closed.Set(id, pos)
	return pos, true
}

// MarkOpen reopens a closing position whose sell failed, re-anchoring its
// peak at the recorded peak (floored at the fill price).
func (b *PositionBook) MarkOpen(id string) bool {
	pos, ok := b.live.Get(id)
	if !ok || pos.Status != domain.StatusClosing {
		return false
	}
	pos.Status = domain.StatusOpen
	b.live.Set(id, pos)
	b.peaks.Register(id, decimal.Max(pos.PeakPrice, pos.FillPrice), pos.TriggerPercent)
	return true
}

// Deactivate pauses a staged or open position, dropping its peak record.
func (b *PositionBook) Deactivate(id string) bool {
	pos, ok := b.live.Get(id)
	if !ok || (pos.Status != domain.StatusStaged && pos.Status != domain.StatusOpen) {
		return false
	}
	pos.Status = domain.StatusDeactivated
	b.live.Set(id, pos)
	b.peaks.Remove(id)
	return true
}

// Reactivate resumes a deactivated position as open. freshPeak supplies the
// new peak baseline; pass zero to fall back to the recorded peak/fill price.
func (b *PositionBook) Reactivate(id string, freshPeak decimal.Amount) bool {
	pos, ok := b.live.Get(id)
	if !ok || pos.Status != domain.StatusDeactivated {
		return false
	}
	peak := decimal.Max(pos.PeakPrice, pos.FillPrice)
	if !freshPeak.IsZero() {
		peak = decimal.Max(freshPeak, pos.FillPrice)
	}
	pos.Status = domain.StatusOpen
	pos.PeakPrice = peak
	b.live.Set(id, pos)
	b.peaks.Register(id, peak, pos.TriggerPercent)
	return true
}

// UpdateTriggerPercent edits the trigger of a live position, reporting the
// status-dependent outcome rather than a bare bool so callers can tell the
// user exactly why an edit did not apply.
func (b *PositionBook) UpdateTriggerPercent(id string, pct float64) TriggerUpdateResult {
	if pct <= 0 || pct >= 100 {
		return TriggerInvalidPercent
	}
	if _, ok := b.closed.Get(id); ok {
		return TriggerPositionClosed
	}
	pos, ok := b.live.Get(id)
	if !ok {
		return TriggerPositionNotFound
	}
	if pos.Status == domain.StatusClosing {
		return TriggerPositionClosing
	}
	pos.TriggerPercent = pct
	b.live.Set(id, pos)
	b.peaks.SetTriggerPercent(id, pct)
	return TriggerUpdated
}

// SetSellAutoDouble flips the auto-double-slippage flag.
func (b *PositionBook) SetSellAutoDouble(id string, enabled bool) bool {
	pos, ok := b.live.Get(id)
	if !ok {
		return false
	}
	pos.SellAutoDouble = enabled
	b.live.Set(id, pos)
	return true
}

// IncrementSellFailures bumps the sell-failure counter and, when auto-double
// is on, doubles the sell slippage capped at 100 percent.
func (b *PositionBook) IncrementSellFailures(id string) (domain.Position, bool) {
	pos, ok := b.live.Get(id)
	if !ok {
		return domain.Position{}, false
	}
	pos.SellFailureCount++
	if pos.SellAutoDouble {
		pos.SellSlippagePercent *= 2
		if pos.SellSlippagePercent > maxSlippagePercent {
			pos.SellSlippagePercent = maxSlippagePercent
		}
	}
	b.live.Set(id, pos)
	return pos, true
}

// List returns every live position sorted by ID.
func (b *PositionBook) List() []domain.Position {
	return b.collect(b.live, func(domain.Position) bool { return true })
}

// ListByUser returns the live positions owned by userID, sorted by ID.
func (b *PositionBook) ListByUser(userID int64) []domain.Position {
	return b.collect(b.live, func(p domain.Position) bool { return p.UserID == userID })
}

// ListClosedForUser returns the closed positions owned by userID, sorted by
// ID.
func (b *PositionBook) ListClosedForUser(userID int64) []domain.Position {
	return b.collect(b.closed, func(p domain.Position) bool { return p.UserID == userID })
}

// ListDeactivated returns every deactivated position sorted by ID.
func (b *PositionBook) ListDeactivated() []domain.Position {
	return b.collect(b.live, func(p domain.Position) bool { return p.Status == domain.StatusDeactivated })
}

func (b *PositionBook) collect(m *state.Map[domain.Position], keep func(domain.Position) bool) []domain.Position {
	var out []domain.Position
	m.Range(func(_ string, pos domain.Position) bool {
		if keep(pos) {
			out = append(out, pos)
		}
		return true
	})
	sortByID(out)
	return out
}

// Counts aggregates positions by status and by owning user across both
// collections.
func (b *PositionBook) Counts() domain.PositionCounts {
	counts := domain.PositionCounts{
		ByStatus: make(map[domain.PositionStatus]int),
		ByUser:   make(map[int64]int),
	}
	tally := func(_ string, pos domain.Position) bool {
		counts.ByStatus[pos.Status]++
		counts.ByUser[pos.UserID]++
		counts.Total++
		return true
	}
	b.live.Range(tally)
	b.closed.Range(tally)
	return counts
}

// DeleteAll wipes every position and peak record. The caller gates this
// behind the admin/environment predicate.
func (b *PositionBook) DeleteAll() {
	b.live.Clear()
	b.closed.Clear()
	b.peaks = tracker.NewPeakTracker()
}

func sortByID(positions []domain.Position) {
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
}
