package tracker

import (
	"sort"

	"github.com/alanyoungcy/trailbot/internal/decimal"
)

// peakBucket groups the positions that share a peak price, so a price update
// touches O(buckets) rather than O(positions). members maps position ID to
// its trigger percent.
type peakBucket struct {
	peak    decimal.Amount
	members map[string]float64
}

// PeakTracker is the in-memory index from peak price to the positions whose
// trailing stop is anchored at that peak. It is rebuilt from position records
// at hydrate and kept consistent with the book by the caller; it persists
// nothing itself.
type PeakTracker struct {
	buckets map[string]*peakBucket // keyed by peak's canonical form
	where   map[string]string      // position ID -> bucket key
}

// NewPeakTracker creates an empty index.
func NewPeakTracker() *PeakTracker {
	return &PeakTracker{
		buckets: make(map[string]*peakBucket),
		where:   make(map[string]string),
	}
}

// Register adds a position under the given peak, replacing any prior entry
// for the same ID.
func (t *PeakTracker) Register(id string, peak decimal.Amount, triggerPercent float64) {
	t.Remove(id)
	bk := peak.Key()
	b, ok := t.buckets[bk]
	if !ok {
		b = &peakBucket{peak: peak, members: make(map[string]float64)}
		t.buckets[bk] = b
	}
	b.members[id] = triggerPercent
	t.where[id] = bk
}

// Remove drops the position from the index. Reports whether it was present.
func (t *PeakTracker) Remove(id string) bool {
	bk, ok := t.where[id]
	if !ok {
		return false
	}
	delete(t.where, id)
	b := t.buckets[bk]
	delete(b.members, id)
	if len(b.members) == 0 {
		delete(t.buckets, bk)
	}
	return true
}

// Peak returns the position's current peak.
func (t *PeakTracker) Peak(id string) (decimal.Amount, bool) {
	bk, ok := t.where[id]
	if !ok {
		return decimal.Zero(), false
	}
	return t.buckets[bk].peak, true
}

// SetTriggerPercent updates the trigger percent for a tracked position
// without moving its peak. Reports whether the position was present.
func (t *PeakTracker) SetTriggerPercent(id string, triggerPercent float64) bool {
	bk, ok := t.where[id]
	if !ok {
		return false
	}
	t.buckets[bk].members[id] = triggerPercent
	return true
}

// Len returns the number of tracked positions.
func (t *PeakTracker) Len() int {
	return len(t.where)
}

// Update folds every bucket whose peak is strictly below latest into the
// latest bucket: a new high water mark re-anchors all those positions at
// once. Buckets at or above latest are untouched. Returns the IDs whose peak
// moved, so the caller can persist the new peaks on the position records.
func (t *PeakTracker) Update(latest decimal.Amount) []string {
	var moved []string
	lk := latest.Key()
	var target *peakBucket
	for bk, b := range t.buckets {
		if bk == lk || decimal.Cmp(b.peak, latest) >= 0 {
			continue
		}
		if target == nil {
			if existing, ok := t.buckets[lk]; ok {
				target = existing
			} else {
				target = &peakBucket{peak: latest, members: make(map[string]float64)}
				t.buckets[lk] = target
			}
		}
		for id, pct := range b.members {
			target.members[id] = pct
			t.where[id] = lk
			moved = append(moved, id)
		}
		delete(t.buckets, bk)
	}
	sort.Strings(moved)
	return moved
}

// CollectTriggered returns, sorted for deterministic processing, the IDs of
// positions whose drop from peak to latest meets or exceeds their trigger
// percent. Triggered positions are removed from the index; the caller owns
// the status transition.
func (t *PeakTracker) CollectTriggered(latest decimal.Amount) []string {
	var triggered []string
	for _, b := range t.buckets {
		if decimal.Cmp(b.peak, latest) <= 0 {
			continue
		}
		drop, ok := decimal.Div(decimal.Sub(b.peak, latest), b.peak, decimal.Precision)
		if !ok {
			continue
		}
		for id, pct := range b.members {
			threshold := decimal.MoveDecimalLeft(decimal.FromFloat64(pct, decimal.Precision), 2)
			if decimal.Cmp(drop, threshold) >= 0 {
				triggered = append(triggered, id)
			}
		}
	}
	for _, id := range triggered {
		t.Remove(id)
	}
	sort.Strings(triggered)
	return triggered
}
