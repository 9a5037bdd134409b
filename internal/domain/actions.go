package domain

// ActionBatch is the set of decisions an actor emits after a price tick for
// the external trade-execution pipeline to act upon. The actor itself never
// contacts an exchange.
type ActionBatch struct {
	// PositionsToClose crossed their trailing-stop trigger (or were manually
	// closed) and need sell orders placed.
	PositionsToClose []Position `json:"positionsToClose"`
	// BuysToConfirm are pending buys whose external confirmation is
	// outstanding.
	BuysToConfirm []Position `json:"buysToConfirm"`
	// SellsToConfirm are closing positions whose sell confirmation is
	// outstanding.
	SellsToConfirm []Position `json:"sellsToConfirm"`
}

// Empty reports whether the batch contains no work.
func (b ActionBatch) Empty() bool {
	return len(b.PositionsToClose) == 0 && len(b.BuysToConfirm) == 0 && len(b.SellsToConfirm) == 0
}
