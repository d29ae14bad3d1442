package payout

import (
	"errors"
	"fmt"
)

// Failure reasons recorded on items for operator review.
const (
	ReasonInsufficientBalance = "insufficient_balance_at_execution"
	ReasonAttemptsExhausted   = "max transfer attempts exhausted"
	ReasonGatewayRejected     = "gateway rejected transfer"
)

// ErrPayoutsDisabled is returned by the scheduler when payouts are switched
// off in the runtime settings.
var ErrPayoutsDisabled = errors.New("payouts are disabled")

// InvariantError marks a state the engine should never reach — an
// unexpected transition or an idempotency-key collision. It is fatal for
// the single item it concerns and must never abort sibling items.
type InvariantError struct {
	ItemID uint
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("payout invariant violated (item %d): %s", e.ItemID, e.Detail)
}
