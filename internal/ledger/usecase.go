package ledger

import (
	"context"
	"errors"
)

// ErrCounterBusy means the per-counter lock could not be acquired within the
// bounded retry budget. The event fails and the sender may retry.
var ErrCounterBusy = errors.New("inventory counter busy, please try again later (lock)")

// DecrementResult reports the counter state after a sale was applied.
type DecrementResult struct {
	OperationalDay string
	IdealForDay    int
	CumulativeSold int
	Remaining      int
}

type UseCase interface {
	// ApplyDecrement records quantity units sold against the item's counter
	// for the store's current operational day, creating the day's row from
	// the weekday ideal on first touch.
	ApplyDecrement(ctx context.Context, storeID, inventoryItemID string, quantity int) (*DecrementResult, error)
}
