package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/balance"
)

// ChunkEnqueuer hands bounded chunks of payout items to the durable work
// queue. Implemented by the jobqueue package.
type ChunkEnqueuer interface {
	EnqueuePayoutChunk(batchID uint, itemIDs []uint) error
}

// SchedulerConfig carries the orchestration knobs.
type SchedulerConfig struct {
	MinimumPayout int64 // minor units
	Holdback      time.Duration
	ChunkSize     int
	Enabled       bool
}

// SchedulerConfigFromSettings derives the config from runtime settings.
func SchedulerConfigFromSettings(s *models.AppSettings) SchedulerConfig {
	return SchedulerConfig{
		MinimumPayout: s.GetMinimumPayoutMinorUnits(),
		Holdback:      s.GetHoldbackWindow(),
		ChunkSize:     s.GetChunkSize(),
		Enabled:       s.PayoutsEnabled,
	}
}

// Scheduler creates payout batches. It decides WHEN work exists; the queue
// workers decide HOW each item is processed. Firing it twice for the same
// scheduled date is a no-op thanks to the unique date index.
type Scheduler struct {
	db  *gorm.DB
	enq ChunkEnqueuer
	cfg SchedulerConfig
}

// NewScheduler creates a scheduler.
func NewScheduler(db *gorm.DB, enq ChunkEnqueuer, cfg SchedulerConfig) *Scheduler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 25
	}
	return &Scheduler{db: db, enq: enq, cfg: cfg}
}

// RunScheduledBatch creates (or returns) the batch for the scheduled date.
// On first creation it selects eligible accounts, creates one pending item
// per account in the same transaction as the batch row, then enqueues the
// items as fixed-size chunks. Returns (batch, created).
func (s *Scheduler) RunScheduledBatch(ctx context.Context, scheduledDate time.Time) (*models.PayoutBatch, bool, error) {
	if !s.cfg.Enabled {
		return nil, false, ErrPayoutsDisabled
	}
	scheduledDate = truncateToDate(scheduledDate)

	var (
		batch   *models.PayoutBatch
		created bool
		itemIDs []uint
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate := &models.PayoutBatch{
			ScheduledDate: scheduledDate,
			Status:        models.BatchStatusPending,
		}
		wasCreated, stored, err := repository.NewPayoutRepository(tx).CreateBatchIfAbsent(candidate)
		if err != nil {
			return fmt.Errorf("batch upsert failed: %w", err)
		}
		if !wasCreated {
			// Duplicate trigger for this date: return the existing batch.
			batch = stored
			created = false
			return nil
		}
		created = true

		accounts, err := repository.NewAccountRepository(tx).ListEligible()
		if err != nil {
			return fmt.Errorf("eligible account scan failed: %w", err)
		}

		now := time.Now()
		var totalAmount int64
		for _, account := range accounts {
			withdrawable, err := balance.WithdrawableTx(tx, account.ID, now, s.cfg.Holdback)
			if err != nil {
				return fmt.Errorf("balance for account %d failed: %w", account.ID, err)
			}
			if withdrawable < s.cfg.MinimumPayout || withdrawable == 0 {
				continue
			}

			item := models.PayoutItem{
				BatchID:        candidate.ID,
				AccountID:      account.ID,
				Amount:         withdrawable,
				Status:         models.ItemStatusPending,
				IdempotencyKey: models.PayoutIdempotencyKey(candidate.ID, account.ID),
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("item create for account %d failed: %w", account.ID, err)
			}
			itemIDs = append(itemIDs, item.ID)
			totalAmount += item.Amount
		}

		if err := tx.Model(&models.PayoutBatch{}).
			Where("id = ?", candidate.ID).
			Updates(map[string]interface{}{
				"item_count":   len(itemIDs),
				"total_amount": totalAmount,
			}).Error; err != nil {
			return fmt.Errorf("batch aggregate write failed: %w", err)
		}

		candidate.ItemCount = len(itemIDs)
		candidate.TotalAmount = totalAmount
		batch = candidate
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if !created {
		log.Infof("[PayoutScheduler] Batch for %s already exists (id=%d), trigger ignored",
			scheduledDate.Format("2006-01-02"), batch.ID)
		return batch, false, nil
	}

	log.Infof("[PayoutScheduler] Created batch %d for %s: %d items, total %d",
		batch.ID, scheduledDate.Format("2006-01-02"), batch.ItemCount, batch.TotalAmount)

	// Enqueue after commit so workers cannot observe uncommitted items. A
	// crash between commit and enqueue is covered by the retry scheduler's
	// never-enqueued sweep.
	if err := s.EnqueueChunks(batch.ID, itemIDs); err != nil {
		return batch, true, err
	}
	return batch, true, nil
}

// EnqueueChunks splits item ids into fixed-size chunks and enqueues them.
func (s *Scheduler) EnqueueChunks(batchID uint, itemIDs []uint) error {
	for _, chunk := range ChunkItemIDs(itemIDs, s.cfg.ChunkSize) {
		if err := s.enq.EnqueuePayoutChunk(batchID, chunk); err != nil {
			return fmt.Errorf("chunk enqueue for batch %d failed: %w", batchID, err)
		}
	}
	return nil
}

// ChunkItemIDs splits ids into slices of at most size elements.
func ChunkItemIDs(ids []uint, size int) [][]uint {
	if size <= 0 {
		size = 25
	}
	var chunks [][]uint
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
