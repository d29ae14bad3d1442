package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
)

// AccountRepository defines read access to creator accounts. Accounts are
// owned by the identity subsystem; the payout engine never writes them.
type AccountRepository interface {
	GetByID(id uint) (*models.Account, error)
	Exists(id uint) (bool, error)
	ListEligible() ([]models.Account, error)
}

// LedgerRepository defines operations on the append-only ledger.
type LedgerRepository interface {
	// AppendIfAbsent inserts the entry unless one with the same
	// (kind, reference_id) already exists. Returns whether a row was written.
	AppendIfAbsent(entry *models.LedgerEntry) (bool, error)
	SumCreditsBefore(accountID uint, cutoff time.Time) (int64, error)
	SumNonCredits(accountID uint) (int64, error)
	ListByAccount(accountID uint, offset, limit int) ([]models.LedgerEntry, error)
}

// PayoutRepository defines operations on payout batches and items. All item
// state transitions live on the model (conditional updates); this interface
// covers creation, lookups and the selects the background jobs run on.
type PayoutRepository interface {
	// CreateBatchIfAbsent inserts a batch for the scheduled date unless one
	// exists. Returns (created, stored batch).
	CreateBatchIfAbsent(batch *models.PayoutBatch) (bool, *models.PayoutBatch, error)
	GetBatch(id uint) (*models.PayoutBatch, error)
	GetBatchByDate(scheduledDate time.Time) (*models.PayoutBatch, error)
	ListOpenBatchIDs() ([]uint, error)

	GetItem(id uint) (*models.PayoutItem, error)
	GetItemByIdempotencyKey(key string) (*models.PayoutItem, error)
	GetItemByExternalTransferID(transferID string) (*models.PayoutItem, error)
	ListItemsByBatch(batchID uint) ([]models.PayoutItem, error)

	// SumOpenReservations totals pending/processing item amounts for an
	// account — payouts in flight that the ledger does not yet show.
	SumOpenReservations(accountID uint) (int64, error)

	// ListRetryCandidates returns pending items that have been attempted at
	// least once, for the retry scheduler to filter by backoff.
	ListRetryCandidates(limit int) ([]models.PayoutItem, error)
	// ListNeverEnqueued returns pending, never-attempted items created
	// before cutoff; covers a crash between batch commit and enqueue.
	ListNeverEnqueued(cutoff time.Time, limit int) ([]models.PayoutItem, error)
	// ListStuckProcessing returns items claimed before cutoff that never
	// reached a terminal state, for reconciliation.
	ListStuckProcessing(cutoff time.Time, limit int) ([]models.PayoutItem, error)
}

// QueueRepository defines the interface for queue introspection operations
// exposed to operators.
type QueueRepository interface {
	GetListLength(key string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account AccountRepository
	Ledger  LedgerRepository
	Payout  PayoutRepository
	Queue   QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account: NewAccountRepository(db),
		Ledger:  NewLedgerRepository(db),
		Payout:  NewPayoutRepository(db),
		Queue:   NewQueueRepository(),
	}
}
