package domain

import (
	"context"

	"github.com/alanyoungcy/trailbot/internal/decimal"
)

// PricePoint is a price plus the monotonic observation time (milliseconds)
// attached by whoever observed it. Observation time, not arrival order,
// decides which of two competing updates wins.
type PricePoint struct {
	Price        decimal.Amount `json:"price"`
	ObservedAtMS int64          `json:"observedAtMS"`
}

// PriceOracle fetches the current price of token denominated in vsToken from
// an external source. Implementations return ErrPriceUnavailable when the
// token is delisted or the response is malformed; callers must treat that as
// "cannot act yet", never as a zero price.
type PriceOracle interface {
	TokenPrice(ctx context.Context, tokenAddress, vsTokenAddress string) (decimal.Amount, error)
}

// TokenResolver resolves token metadata. The actor resolves each address once
// per lifetime and caches the result in persistent state.
type TokenResolver interface {
	ResolveToken(ctx context.Context, address string) (TokenInfo, error)
}
