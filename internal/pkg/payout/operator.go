package payout

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
)

// Operator action errors, mapped to HTTP statuses by the API layer.
var (
	ErrItemNotFound      = errors.New("payout item not found")
	ErrItemNotRetryable  = errors.New("item is not in a retryable state")
	ErrItemNotCancelable = errors.New("item is not in a cancelable state")
)

// RetryItem requeues a failed_needs_review item and enqueues it as a
// single-item chunk. Terminal validation failures cannot be retried; the
// gateway already rejected them with the same inputs.
func RetryItem(db *gorm.DB, enq ChunkEnqueuer, itemID uint) (*models.PayoutItem, error) {
	item, err := repository.NewPayoutRepository(db).GetItem(itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("item load failed: %w", err)
	}

	requeued, err := item.Requeue(db)
	if err != nil {
		return nil, fmt.Errorf("requeue failed: %w", err)
	}
	if !requeued {
		return nil, ErrItemNotRetryable
	}

	log.Infof("[PayoutOperator] Item %d requeued for retry", item.ID)
	if err := enq.EnqueuePayoutChunk(item.BatchID, []uint{item.ID}); err != nil {
		// The item is pending again; the retry sweep will pick it up even
		// if this enqueue failed.
		log.Errorf("[PayoutOperator] Enqueue after requeue failed for item %d: %v", item.ID, err)
	}
	return item, nil
}

// CancelItem cancels a pending item. Processing items cannot be interrupted
// and terminal items cannot change. Cancelling the last open item can close
// the batch, which triggers the report export.
func CancelItem(db *gorm.DB, reports ReportEnqueuer, itemID uint) (*models.PayoutItem, error) {
	item, err := repository.NewPayoutRepository(db).GetItem(itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("item load failed: %w", err)
	}

	cancelled, err := item.Cancel(db)
	if err != nil {
		return nil, fmt.Errorf("cancel failed: %w", err)
	}
	if !cancelled {
		return nil, ErrItemNotCancelable
	}

	log.Infof("[PayoutOperator] Item %d cancelled", item.ID)
	if _, err := FinalizeBatch(db, reports, item.BatchID); err != nil {
		log.Errorf("[PayoutOperator] Finalize after cancel failed for batch %d: %v", item.BatchID, err)
	}
	return item, nil
}
