package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
)

// retryScanLimit bounds one retry sweep so a large backlog is drained over
// several runs instead of one huge enqueue burst.
const retryScanLimit = 1000

// neverEnqueuedGrace is how old a never-attempted pending item must be
// before the sweep re-enqueues it. Fresh items are normally still in the
// queue from their batch run.
const neverEnqueuedGrace = 10 * time.Minute

// RetryConfig carries the backoff parameters.
type RetryConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	ChunkSize int
}

// RetryConfigFromSettings derives the config from runtime settings.
func RetryConfigFromSettings(s *models.AppSettings) RetryConfig {
	return RetryConfig{
		BaseDelay: s.GetRetryBaseDelay(),
		MaxDelay:  s.GetRetryMaxDelay(),
		ChunkSize: s.GetChunkSize(),
	}
}

// Backoff returns the wait before the next attempt: attempts² times the base
// delay, capped at max. attempts is the number of attempts already made.
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(attempts*attempts) * base
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// RetryScheduler periodically re-enqueues two classes of pending items:
// released items whose backoff has elapsed, and items that were committed
// but never enqueued because the process died between commit and enqueue.
type RetryScheduler struct {
	repo repository.PayoutRepository
	enq  ChunkEnqueuer
	cfg  RetryConfig
}

// NewRetryScheduler creates a retry scheduler.
func NewRetryScheduler(repo repository.PayoutRepository, enq ChunkEnqueuer, cfg RetryConfig) *RetryScheduler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 25
	}
	return &RetryScheduler{repo: repo, enq: enq, cfg: cfg}
}

// Run performs one sweep. Enqueueing an item that another path already
// claimed is harmless: the worker's claim simply loses and skips it.
func (r *RetryScheduler) Run(ctx context.Context) error {
	now := time.Now()

	candidates, err := r.repo.ListRetryCandidates(retryScanLimit)
	if err != nil {
		return fmt.Errorf("retry candidate scan failed: %w", err)
	}

	due := make(map[uint][]uint)
	for _, item := range candidates {
		if item.LastAttemptedAt == nil {
			continue
		}
		wait := Backoff(item.AttemptCount, r.cfg.BaseDelay, r.cfg.MaxDelay)
		if now.Sub(*item.LastAttemptedAt) < wait {
			continue
		}
		due[item.BatchID] = append(due[item.BatchID], item.ID)
	}

	orphans, err := r.repo.ListNeverEnqueued(now.Add(-neverEnqueuedGrace), retryScanLimit)
	if err != nil {
		return fmt.Errorf("never-enqueued scan failed: %w", err)
	}
	for _, item := range orphans {
		due[item.BatchID] = append(due[item.BatchID], item.ID)
	}

	var enqueued int
	for batchID, itemIDs := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, chunk := range ChunkItemIDs(itemIDs, r.cfg.ChunkSize) {
			if err := r.enq.EnqueuePayoutChunk(batchID, chunk); err != nil {
				return fmt.Errorf("retry enqueue for batch %d failed: %w", batchID, err)
			}
			enqueued += len(chunk)
		}
	}

	if enqueued > 0 {
		log.Infof("[PayoutRetry] Re-enqueued %d items (%d retry candidates, %d never enqueued)",
			enqueued, len(candidates), len(orphans))
	}
	return nil
}
