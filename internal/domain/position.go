package domain

import "github.com/alanyoungcy/trailbot/internal/decimal"

// PositionStatus is the lifecycle tag of a position. At any instant a
// position carries exactly one status; the partitions the tracker exposes
// (pending buys, staged, open, closing, closed, deactivated) are views over
// this single tag.
type PositionStatus string

const (
	// StatusPendingBuy: buy order submitted, fill not yet confirmed. No fill
	// price, no peak record.
	StatusPendingBuy PositionStatus = "pending_buy"
	// StatusStaged: fill confirmed, fill price known, not yet folded into the
	// price-driven index by a tick.
	StatusStaged PositionStatus = "staged"
	// StatusOpen: tracked against the live price with a peak record.
	StatusOpen PositionStatus = "open"
	// StatusClosing: trigger crossed or manual close requested; sell handed
	// to the executor, confirmation outstanding.
	StatusClosing PositionStatus = "closing"
	// StatusClosed: sell confirmed. Terminal; retained for history.
	StatusClosed PositionStatus = "closed"
	// StatusDeactivated: paused by the user; not price-tracked until
	// reactivated.
	StatusDeactivated PositionStatus = "deactivated"
)

// TokenInfo is resolved token metadata from the external token resolver.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

// PriorityFee holds the priority-fee configuration a position was submitted
// with. It is carried through to the trade-execution pipeline untouched.
type PriorityFee struct {
	Level       string `json:"level"`
	MaxLamports int64  `json:"maxLamports"`
}

// Position is one trailing stop-loss position for a (token, vsToken) pair.
type Position struct {
	ID     string `json:"positionID"`
	UserID int64  `json:"userID"`
	ChatID int64  `json:"chatID,omitempty"`

	Token   TokenInfo `json:"token"`
	VsToken TokenInfo `json:"vsToken"`

	// VsTokenAmt is the amount of vsToken spent on the buy; TokenAmt is the
	// amount of token received on fill (zero until confirmed).
	VsTokenAmt decimal.Amount `json:"vsTokenAmt"`
	TokenAmt   decimal.Amount `json:"tokenAmt"`

	// FillPrice is set when the buy is confirmed. PeakPrice is the highest
	// price observed since then and is maintained only while the position is
	// staged or open.
	FillPrice decimal.Amount `json:"fillPrice"`
	PeakPrice decimal.Amount `json:"peakPrice"`

	// TriggerPercent is the whole-number percent drop from the peak that
	// fires a close (10 means close when price falls 10% below peak).
	TriggerPercent      float64 `json:"triggerPercent"`
	SellSlippagePercent float64 `json:"sellSlippagePercent"`
	SellAutoDouble      bool    `json:"sellAutoDoubleSlippage"`

	PriorityFee PriorityFee `json:"priorityFee"`

	// SellConfirmed is false while a closing sell awaits external
	// confirmation. SellFailureCount counts non-slippage sell failures.
	SellConfirmed    bool `json:"sellConfirmed"`
	SellFailureCount int  `json:"sellFailureCount"`
	BuyRetryCount    int  `json:"buyRetryCount"`

	Status PositionStatus `json:"status"`

	// NetPNL is recorded when the position is closed.
	NetPNL decimal.Amount `json:"netPNL"`
}

// PNL is the measured profit and loss of a live position at a price.
type PNL struct {
	CurrentPrice decimal.Amount `json:"currentPrice"`
	CurrentValue decimal.Amount `json:"currentValue"`
	PNL          decimal.Amount `json:"PNL"`
}

// PositionAndMaybePNL pairs a position with its PNL when a current price was
// available. PNL is nil when no price could be obtained.
type PositionAndMaybePNL struct {
	Position Position `json:"position"`
	PNL      *PNL     `json:"PNL,omitempty"`
}

// MeasurePNL computes the current value (tokenAmt × price) and PNL
// (currentValue − vsTokenAmt) of a position at the given price.
func MeasurePNL(pos Position, price decimal.Amount) PNL {
	value := decimal.Mul(pos.TokenAmt, price)
	return PNL{
		CurrentPrice: price,
		CurrentValue: value,
		PNL:          decimal.Sub(value, pos.VsTokenAmt),
	}
}

// PositionCounts aggregates positions by status and by owning user, for
// admin/reporting surfaces.
type PositionCounts struct {
	ByStatus map[PositionStatus]int `json:"byStatus"`
	ByUser   map[int64]int          `json:"byUser"`
	Total    int                    `json:"total"`
}
