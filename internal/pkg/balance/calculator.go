package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/repository"
)

// ErrAccountNotFound is returned when the account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// DefaultHoldbackWindow is the chargeback buffer applied when no runtime
// configuration is available. Measured from transaction time.
const DefaultHoldbackWindow = 7 * 24 * time.Hour

// Calculator derives withdrawable balances from the ledger. It is a pure
// read: it never writes, and all sums for one evaluation run inside a single
// read transaction so concurrent writers cannot skew the result.
type Calculator struct {
	db       *gorm.DB
	holdback time.Duration
}

// NewCalculator creates a calculator with the given holdback window.
func NewCalculator(db *gorm.DB, holdback time.Duration) *Calculator {
	if holdback < 0 {
		holdback = 0
	}
	return &Calculator{db: db, holdback: holdback}
}

// Withdrawable computes the balance an account may withdraw as of asOf:
//
//	Σ(credits older than the holdback window)
//	+ Σ(debits, payouts, chargeback reversals — all signed negative)
//	− Σ(open payout reservations)
//
// clamped at zero. Credits inside the holdback window are excluded so a
// chargeback can still surface before the funds become withdrawable.
func (c *Calculator) Withdrawable(ctx context.Context, accountID uint, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var result int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := repository.NewAccountRepository(tx).Exists(accountID)
		if err != nil {
			return fmt.Errorf("account lookup failed: %w", err)
		}
		if !exists {
			return ErrAccountNotFound
		}

		balance, err := WithdrawableTx(tx, accountID, asOf, c.holdback)
		if err != nil {
			return err
		}
		result = balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// WithdrawableTx computes the withdrawable balance using the caller's
// transaction. The orchestrator and chunk worker use this form so the
// balance read shares a snapshot with their own writes.
func WithdrawableTx(tx *gorm.DB, accountID uint, asOf time.Time, holdback time.Duration) (int64, error) {
	net, err := NetTx(tx, accountID, asOf, holdback)
	if err != nil {
		return 0, err
	}
	if net < 0 {
		return 0, nil
	}
	return net, nil
}

// NetTx computes the same sum as WithdrawableTx but without the clamp. A
// negative net means the account cannot fund all of its open reservations —
// the signal the chunk worker checks before dispatching a transfer whose
// own reservation is already included in the sum.
func NetTx(tx *gorm.DB, accountID uint, asOf time.Time, holdback time.Duration) (int64, error) {
	cutoff := asOf.Add(-holdback)
	ledger := repository.NewLedgerRepository(tx)

	released, err := ledger.SumCreditsBefore(accountID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("credit sum failed: %w", err)
	}

	nonCredits, err := ledger.SumNonCredits(accountID)
	if err != nil {
		return 0, fmt.Errorf("non-credit sum failed: %w", err)
	}

	reserved, err := repository.NewPayoutRepository(tx).SumOpenReservations(accountID)
	if err != nil {
		return 0, fmt.Errorf("reservation sum failed: %w", err)
	}

	// nonCredits are stored negative, so this is released - debits - reserved.
	return released + nonCredits - reserved, nil
}
