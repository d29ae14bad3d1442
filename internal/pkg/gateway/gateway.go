package gateway

import "context"

// TransferStatus is the gateway-side state of a transfer.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusSucceeded TransferStatus = "succeeded"
	TransferStatusFailed    TransferStatus = "failed"
)

// TransferResult is the gateway's view of a transfer.
type TransferResult struct {
	TransferID    string         `json:"transfer_id"`
	Status        TransferStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// Client is the payout gateway contract. The gateway MUST deduplicate by
// idempotency key: repeated Transfer calls with the same key return the
// original transfer instead of moving money twice.
type Client interface {
	// Transfer moves amountMinorUnits to the destination. The context
	// carries the hard call timeout; a deadline error means unknown
	// outcome, not failure.
	Transfer(ctx context.Context, destination string, amountMinorUnits int64, idempotencyKey string) (*TransferResult, error)

	// LookupTransfer returns the authoritative state of the transfer
	// created under the idempotency key, or ErrTransferNotFound when the
	// gateway never received it.
	LookupTransfer(ctx context.Context, idempotencyKey string) (*TransferResult, error)
}
