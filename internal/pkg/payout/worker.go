package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/balance"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
	"github.com/creatorly/creatorpay/internal/pkg/metrics"
	"github.com/creatorly/creatorpay/internal/pkg/metrics/counter"
)

// WorkerConfig carries the per-item processing knobs.
type WorkerConfig struct {
	MaxAttempts         int
	Holdback            time.Duration
	TransferConcurrency int
}

// WorkerConfigFromSettings derives the config from runtime settings.
func WorkerConfigFromSettings(s *models.AppSettings) WorkerConfig {
	return WorkerConfig{
		MaxAttempts:         s.GetMaxAttempts(),
		Holdback:            s.GetHoldbackWindow(),
		TransferConcurrency: s.GetTransferConcurrency(),
	}
}

// Worker processes payout chunks. Chunks may be delivered more than once and
// by concurrent workers; correctness rests on the item claim (conditional
// update) and the gateway idempotency key, never on queue semantics.
//
// One Worker is shared by all queue workers so the transfer semaphore bounds
// in-flight gateway calls process-wide.
type Worker struct {
	db      *gorm.DB
	gw      gateway.Client
	reports ReportEnqueuer
	cfg     WorkerConfig

	transferSlots chan struct{}
}

// NewWorker creates a worker with a transfer-concurrency semaphore. A nil
// reports enqueuer disables report exports.
func NewWorker(db *gorm.DB, gw gateway.Client, reports ReportEnqueuer, cfg WorkerConfig) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TransferConcurrency <= 0 {
		cfg.TransferConcurrency = 5
	}
	return &Worker{
		db:            db,
		gw:            gw,
		reports:       reports,
		cfg:           cfg,
		transferSlots: make(chan struct{}, cfg.TransferConcurrency),
	}
}

// ProcessChunk dispatches the given items concurrently, bounded by the
// transfer-concurrency limit. Item failures are isolated: one bad item never
// aborts its siblings. Concurrent processing of the same item is safe
// because the claim is the mutex, not the chunk. The batch aggregates are
// recomputed once at the end.
func (w *Worker) ProcessChunk(ctx context.Context, batchID uint, itemIDs []uint) error {
	start := time.Now()
	log.Infof("[PayoutWorker] Processing chunk of %d items for batch %d", len(itemIDs), batchID)

	slots := make(chan struct{}, w.cfg.TransferConcurrency)
	var wg sync.WaitGroup
	for _, itemID := range itemIDs {
		if ctx.Err() != nil {
			break
		}
		slots <- struct{}{}
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			defer func() { <-slots }()
			if err := w.processItem(ctx, batchID, id); err != nil {
				// Logged and skipped: the retry scheduler or reconciler
				// picks the item up again later.
				log.Errorf("[PayoutWorker] Item %d (batch %d) failed: %v", id, batchID, err)
			}
		}(itemID)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := FinalizeBatch(w.db, w.reports, batchID); err != nil {
		return fmt.Errorf("batch %d finalize failed: %w", batchID, err)
	}

	log.Infof("[PayoutWorker] Chunk for batch %d done in %s", batchID, time.Since(start))
	return nil
}

func (w *Worker) processItem(ctx context.Context, batchID, itemID uint) error {
	started := time.Now()

	item, err := repository.NewPayoutRepository(w.db).GetItem(itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[PayoutWorker] Item %d not found, skipping", itemID)
			return nil
		}
		return fmt.Errorf("item load failed: %w", err)
	}
	if item.BatchID != batchID {
		return &InvariantError{ItemID: itemID, Detail: fmt.Sprintf("item belongs to batch %d, chunk claims %d", item.BatchID, batchID)}
	}
	if item.Status.Terminal() {
		log.Debugf("[PayoutWorker] Item %d already %s, skipping", itemID, item.Status)
		return nil
	}

	claimed, err := item.Claim(w.db)
	if err != nil {
		return fmt.Errorf("claim failed: %w", err)
	}
	if !claimed {
		// Another worker holds the item, or it reached a terminal state
		// between our read and the claim.
		log.Debugf("[PayoutWorker] Item %d claim lost, skipping", itemID)
		return nil
	}

	if item.AttemptCount > w.cfg.MaxAttempts {
		return w.failItem(item, models.ItemStatusFailedNeedsReview, ReasonAttemptsExhausted, started)
	}

	account, err := repository.NewAccountRepository(w.db).GetByID(item.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return w.failItem(item, models.ItemStatusFailedNeedsReview, "account no longer exists", started)
		}
		return fmt.Errorf("account load failed: %w", err)
	}
	if !account.PayoutEligible() {
		return w.failItem(item, models.ItemStatusFailedNeedsReview, "account no longer eligible", started)
	}

	// Re-validate the balance at execution time. The item's own reservation
	// is already subtracted in the net sum, so a fundable payout shows as
	// net >= 0, not net >= amount.
	var net int64
	err = w.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		net, txErr = balance.NetTx(tx, item.AccountID, time.Now(), w.cfg.Holdback)
		return txErr
	})
	if err != nil {
		return fmt.Errorf("balance re-validation failed: %w", err)
	}
	if net < 0 {
		return w.failItem(item, models.ItemStatusFailedNeedsReview, ReasonInsufficientBalance, started)
	}

	result, err := w.transfer(ctx, account.PayoutDestination, item)
	switch {
	case err == nil:
		return w.applyTransferResult(item, result, started)

	case gateway.IsValidation(err):
		metrics.ObserveTransfer(metrics.OutcomeFailed, 0)
		return w.failItem(item, models.ItemStatusFailedTerminal, fmt.Sprintf("%s: %v", ReasonGatewayRejected, err), started)

	case gateway.IsTransient(err):
		// Unknown outcome. Releasing is safe: a retry reuses the same
		// idempotency key, and the stuck sweep reconciles items that never
		// get released.
		if item.AttemptCount >= w.cfg.MaxAttempts {
			return w.failItem(item, models.ItemStatusFailedNeedsReview, ReasonAttemptsExhausted, started)
		}
		released, relErr := item.Release(w.db, err.Error())
		if relErr != nil {
			return fmt.Errorf("release failed: %w", relErr)
		}
		if released {
			metrics.CountItem("released")
			log.Warnf("[PayoutWorker] %s (attempt %d): %v",
				transitionMsg(item, models.ItemStatusProcessing, models.ItemStatusPending, time.Since(started)),
				item.AttemptCount, err)
		}
		return nil

	default:
		return fmt.Errorf("transfer failed: %w", err)
	}
}

// transfer calls the gateway under the process-wide concurrency bound.
func (w *Worker) transfer(ctx context.Context, destination string, item *models.PayoutItem) (*gateway.TransferResult, error) {
	select {
	case w.transferSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-w.transferSlots }()

	if err := counter.AddGatewayCall(); err != nil {
		log.Debugf("[PayoutWorker] Gateway call counter failed: %v", err)
	}

	start := time.Now()
	result, err := w.gw.Transfer(ctx, destination, item.Amount, item.IdempotencyKey)
	elapsed := time.Since(start)
	if err == nil {
		metrics.ObserveTransfer(metrics.OutcomeSucceeded, elapsed)
	} else if gateway.IsTransient(err) {
		metrics.ObserveTransfer(metrics.OutcomeTransient, elapsed)
	}
	return result, err
}

func (w *Worker) applyTransferResult(item *models.PayoutItem, result *gateway.TransferResult, started time.Time) error {
	switch result.Status {
	case gateway.TransferStatusSucceeded:
		if err := SettleSucceeded(w.db, item, result.TransferID); err != nil {
			return err
		}
		if cerr := counter.AddItemSucceeded(item.Amount); cerr != nil {
			log.Debugf("[PayoutWorker] Success counter failed: %v", cerr)
		}
		metrics.CountItem(string(models.ItemStatusSucceeded))
		log.Infof("[PayoutWorker] %s: amount %d, transfer %s",
			transitionMsg(item, models.ItemStatusProcessing, models.ItemStatusSucceeded, time.Since(started)),
			item.Amount, result.TransferID)
		return nil

	case gateway.TransferStatusFailed:
		reason := result.FailureReason
		if reason == "" {
			reason = ReasonGatewayRejected
		}
		return w.failItem(item, models.ItemStatusFailedTerminal, reason, started)

	case gateway.TransferStatusPending:
		// The gateway accepted the transfer but has not settled it. The item
		// stays processing; the webhook or the reconciler applies the final
		// state.
		log.Infof("[PayoutWorker] Item %d (batch %d, account %d) transfer %s pending at gateway after %s",
			item.ID, item.BatchID, item.AccountID, result.TransferID, time.Since(started).Round(time.Millisecond))
		return nil

	default:
		return &InvariantError{ItemID: item.ID, Detail: fmt.Sprintf("unknown transfer status %q", result.Status)}
	}
}

func (w *Worker) failItem(item *models.PayoutItem, to models.PayoutItemStatus, reason string, started time.Time) error {
	from := item.Status
	marked, err := item.MarkFailed(w.db, to, reason)
	if err != nil {
		return fmt.Errorf("mark failed (%s) failed: %w", to, err)
	}
	if !marked {
		return &InvariantError{ItemID: item.ID, Detail: fmt.Sprintf("could not transition to %s: %s", to, reason)}
	}
	if cerr := counter.AddItemFailed(); cerr != nil {
		log.Debugf("[PayoutWorker] Failure counter failed: %v", cerr)
	}
	metrics.CountItem(string(to))
	log.Warnf("[PayoutWorker] %s: %s", transitionMsg(item, from, to, time.Since(started)), reason)
	return nil
}

// transitionMsg formats the context every item transition log line carries:
// item, batch and account ids, the status edge and the attempt duration.
func transitionMsg(item *models.PayoutItem, from, to models.PayoutItemStatus, took time.Duration) string {
	return fmt.Sprintf("Item %d (batch %d, account %d) %s -> %s in %s",
		item.ID, item.BatchID, item.AccountID, from, to, took.Round(time.Millisecond))
}

// SettleSucceeded books the payout on the ledger and marks the item
// succeeded in one transaction. The ledger write is keyed on the item's
// idempotency key, so applying the same success twice (worker, webhook and
// reconciler all converge here) books exactly one debit.
func SettleSucceeded(db *gorm.DB, item *models.PayoutItem, externalTransferID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		entry := models.LedgerEntry{
			AccountID:   item.AccountID,
			Amount:      -item.Amount,
			Kind:        models.LedgerKindPayout,
			ReferenceID: item.IdempotencyKey,
		}
		if _, err := repository.NewLedgerRepository(tx).AppendIfAbsent(&entry); err != nil {
			return fmt.Errorf("ledger debit failed: %w", err)
		}

		marked, err := item.MarkSucceeded(tx, externalTransferID)
		if err != nil {
			return fmt.Errorf("mark succeeded failed: %w", err)
		}
		if !marked {
			var current models.PayoutItem
			if err := tx.First(&current, item.ID).Error; err != nil {
				return fmt.Errorf("item re-read failed: %w", err)
			}
			if current.Status == models.ItemStatusSucceeded {
				// Already settled by a concurrent path.
				item.Status = current.Status
				item.ExternalTransferID = current.ExternalTransferID
				return nil
			}
			return &InvariantError{ItemID: item.ID, Detail: fmt.Sprintf("success for item in state %s", current.Status)}
		}
		return nil
	})
}
