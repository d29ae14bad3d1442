package payout

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
)

// ReportEnqueuer schedules settlement report exports for finalized batches.
// Implemented by the jobqueue package.
type ReportEnqueuer interface {
	EnqueueReportExport(batchID uint) error
}

// FinalizeBatch recomputes the batch aggregates from item state and closes
// the batch when no open items remain. It is idempotent and safe to call
// after every chunk: the batch status is always a pure function of its
// items. The first call that moves a batch to a terminal status enqueues
// the settlement report export; the export overwrites the same object key,
// so a crash between commit and enqueue at worst re-exports. Returns the
// stored batch.
func FinalizeBatch(db *gorm.DB, reports ReportEnqueuer, batchID uint) (*models.PayoutBatch, error) {
	var batch *models.PayoutBatch
	var newlyTerminal bool

	err := db.Transaction(func(tx *gorm.DB) error {
		var stored models.PayoutBatch
		if err := tx.First(&stored, batchID).Error; err != nil {
			return fmt.Errorf("batch load failed: %w", err)
		}

		type statusCount struct {
			Status models.PayoutItemStatus
			Count  int
		}
		var counts []statusCount
		if err := tx.Model(&models.PayoutItem{}).
			Select("status, COUNT(*) AS count").
			Where("batch_id = ?", batchID).
			Group("status").
			Scan(&counts).Error; err != nil {
			return fmt.Errorf("item count failed: %w", err)
		}

		var succeeded, failed, open int
		for _, c := range counts {
			switch {
			case c.Status == models.ItemStatusSucceeded:
				succeeded += c.Count
			case c.Status.Failed():
				failed += c.Count
			case !c.Status.Terminal():
				open += c.Count
			}
		}

		status := stored.Status
		var completedAt *time.Time
		switch {
		case open > 0:
			status = models.BatchStatusProcessing
		case failed > 0:
			status = models.BatchStatusPartiallyFailed
		default:
			status = models.BatchStatusCompleted
		}
		if status.Terminal() {
			if stored.CompletedAt != nil {
				completedAt = stored.CompletedAt
			} else {
				now := time.Now()
				completedAt = &now
				newlyTerminal = true
			}
		}

		if err := tx.Model(&models.PayoutBatch{}).
			Where("id = ?", batchID).
			Updates(map[string]interface{}{
				"status":          status,
				"succeeded_count": succeeded,
				"failed_count":    failed,
				"completed_at":    completedAt,
			}).Error; err != nil {
			return fmt.Errorf("batch update failed: %w", err)
		}

		stored.Status = status
		stored.SucceededCount = succeeded
		stored.FailedCount = failed
		stored.CompletedAt = completedAt
		batch = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	if batch.Status.Terminal() {
		log.Infof("[PayoutBatch] Batch %d finalized as %s: %d succeeded, %d failed of %d",
			batch.ID, batch.Status, batch.SucceededCount, batch.FailedCount, batch.ItemCount)
	}

	if newlyTerminal && reports != nil {
		// The export job is keyed on the batch, so a duplicate enqueue from a
		// racing finalize only re-renders the same report.
		if err := reports.EnqueueReportExport(batch.ID); err != nil {
			log.Errorf("[PayoutBatch] Report export enqueue for batch %d failed: %v", batch.ID, err)
		}
	}
	return batch, nil
}

// FinalizeOpenBatches recomputes every non-terminal batch. Run periodically
// so batches whose last item was settled by a webhook or the reconciler
// still close.
func FinalizeOpenBatches(db *gorm.DB, reports ReportEnqueuer) error {
	ids, err := repository.NewPayoutRepository(db).ListOpenBatchIDs()
	if err != nil {
		return fmt.Errorf("open batch scan failed: %w", err)
	}
	for _, id := range ids {
		if _, err := FinalizeBatch(db, reports, id); err != nil {
			return err
		}
	}
	return nil
}
