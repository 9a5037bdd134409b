// Package tracker holds the price-driven state of one token pair actor: the
// staleness-bounded price cache and the peak-price index that decides which
// trailing stop-loss positions must close on each tick.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/state"
)

// staleAfterMS is the maximum age of a cached price before a fresh oracle
// fetch is required.
const staleAfterMS = 1000

// PriceCache holds the current pair price with its observation time, both
// persisted through dirty-tracked cells. Updates are accepted only when
// strictly newer by observation time, so a slow stale fetch completing after
// a fresher one cannot regress the cache.
type PriceCache struct {
	current     *state.Cell[*decimal.Amount]
	refreshedMS *state.Cell[int64]

	// nowMS is swappable for tests.
	nowMS func() int64
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		current:     state.NewCell[*decimal.Amount]("currentPrice", nil),
		refreshedMS: state.NewCell[int64]("priceLastRefreshed", 0),
		nowMS:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Initialize hydrates both cells from the actor's bulk snapshot.
func (pc *PriceCache) Initialize(snapshot map[string][]byte) error {
	if err := pc.current.Initialize(snapshot); err != nil {
		return err
	}
	return pc.refreshedMS.Initialize(snapshot)
}

// Flush persists whichever cells changed.
func (pc *PriceCache) Flush(ctx context.Context, store domain.KVStore) error {
	if err := pc.current.Flush(ctx, store); err != nil {
		return err
	}
	return pc.refreshedMS.Flush(ctx, store)
}

// MaybeAccept stores candidate as the current price iff observedAtMS is
// strictly newer than the last accepted observation. Reports whether the
// candidate was accepted.
func (pc *PriceCache) MaybeAccept(candidate decimal.Amount, observedAtMS int64) bool {
	if observedAtMS <= pc.refreshedMS.Get() {
		return false
	}
	v := candidate
	pc.current.Set(&v)
	pc.refreshedMS.Set(observedAtMS)
	return true
}

// Current returns the cached price, if any.
func (pc *PriceCache) Current() (decimal.Amount, bool) {
	p := pc.current.Get()
	if p == nil {
		return decimal.Zero(), false
	}
	return *p, true
}

// GetPrice returns the pair price. A cached price younger than the staleness
// bound is returned with fresh=false and no network I/O; otherwise the
// oracle is consulted and, on success, the result is run through MaybeAccept
// with the current time and returned with fresh=true. Oracle failure
// (including delisted tokens) is surfaced as an error — absence, never zero.
func (pc *PriceCache) GetPrice(ctx context.Context, oracle domain.PriceOracle, tokenAddress, vsTokenAddress string) (decimal.Amount, bool, error) {
	now := pc.nowMS()
	if price, ok := pc.Current(); ok && now-pc.refreshedMS.Get() <= staleAfterMS {
		return price, false, nil
	}

	fetched, err := oracle.TokenPrice(ctx, tokenAddress, vsTokenAddress)
	if err != nil {
		return decimal.Zero(), false, fmt.Errorf("tracker: oracle fetch %s/%s: %w", tokenAddress, vsTokenAddress, err)
	}

	if pc.MaybeAccept(fetched, pc.nowMS()) {
		return fetched, true, nil
	}
	// A concurrent-in-spirit update beat this fetch; serve whatever is
	// current rather than regressing.
	if price, ok := pc.Current(); ok {
		return price, false, nil
	}
	return decimal.Zero(), false, domain.ErrPriceUnavailable
}
