package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
	"github.com/creatorly/creatorpay/internal/pkg/metrics"
	"github.com/creatorly/creatorpay/internal/pkg/metrics/counter"
)

const reconcileScanLimit = 500

// ReconcileConfig carries the reconciliation knobs.
type ReconcileConfig struct {
	StuckThreshold time.Duration
	MaxAttempts    int
}

// ReconcileConfigFromSettings derives the config from runtime settings.
func ReconcileConfigFromSettings(s *models.AppSettings) ReconcileConfig {
	return ReconcileConfig{
		StuckThreshold: s.GetStuckThreshold(),
		MaxAttempts:    s.GetMaxAttempts(),
	}
}

// Reconciler resolves items stuck in processing: a worker crashed after the
// claim, or a transfer call timed out with an unknown outcome. The gateway
// is the authority; the local state is always moved toward what the gateway
// reports, never the other way around.
type Reconciler struct {
	db   *gorm.DB
	repo repository.PayoutRepository
	gw   gateway.Client
	cfg  ReconcileConfig
}

// NewReconciler creates a reconciler.
func NewReconciler(db *gorm.DB, repo repository.PayoutRepository, gw gateway.Client, cfg ReconcileConfig) *Reconciler {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 30 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Reconciler{db: db, repo: repo, gw: gw, cfg: cfg}
}

// Run performs one reconciliation sweep over stuck processing items.
func (r *Reconciler) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-r.cfg.StuckThreshold)
	stuck, err := r.repo.ListStuckProcessing(cutoff, reconcileScanLimit)
	if err != nil {
		return fmt.Errorf("stuck item scan failed: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	log.Infof("[PayoutReconcile] Reconciling %d stuck items (claimed before %s)",
		len(stuck), cutoff.Format(time.RFC3339))

	for i := range stuck {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reconcileItem(ctx, &stuck[i]); err != nil {
			log.Errorf("[PayoutReconcile] Item %d reconcile failed: %v", stuck[i].ID, err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileItem(ctx context.Context, item *models.PayoutItem) error {
	result, err := r.gw.LookupTransfer(ctx, item.IdempotencyKey)

	switch {
	case err == nil:
		return r.applyLookup(item, result)

	case errors.Is(err, gateway.ErrTransferNotFound):
		// The transfer never reached the gateway. The item can be retried
		// safely under the same idempotency key.
		if item.AttemptCount >= r.cfg.MaxAttempts {
			return r.failItem(item, models.ItemStatusFailedNeedsReview, ReasonAttemptsExhausted)
		}
		stuck := stuckFor(item)
		released, relErr := item.Release(r.db, "reconciled: transfer never created")
		if relErr != nil {
			return fmt.Errorf("release failed: %w", relErr)
		}
		if released {
			metrics.CountItem("released")
			log.Infof("[PayoutReconcile] %s: no transfer at gateway",
				transitionMsg(item, models.ItemStatusProcessing, models.ItemStatusPending, stuck))
		}
		return nil

	case gateway.IsTransient(err):
		// Gateway unreachable; next sweep will try again.
		log.Warnf("[PayoutReconcile] Item %d lookup deferred: %v", item.ID, err)
		return nil

	default:
		return fmt.Errorf("lookup failed: %w", err)
	}
}

func (r *Reconciler) applyLookup(item *models.PayoutItem, result *gateway.TransferResult) error {
	switch result.Status {
	case gateway.TransferStatusSucceeded:
		if err := SettleSucceeded(r.db, item, result.TransferID); err != nil {
			return err
		}
		if cerr := counter.AddItemSucceeded(item.Amount); cerr != nil {
			log.Debugf("[PayoutReconcile] Success counter failed: %v", cerr)
		}
		metrics.CountItem(string(models.ItemStatusSucceeded))
		log.Infof("[PayoutReconcile] %s: settled from gateway state, transfer %s",
			transitionMsg(item, models.ItemStatusProcessing, models.ItemStatusSucceeded, stuckFor(item)), result.TransferID)
		return nil

	case gateway.TransferStatusFailed:
		reason := result.FailureReason
		if reason == "" {
			reason = ReasonGatewayRejected
		}
		return r.failItem(item, models.ItemStatusFailedTerminal, "reconciled: "+reason)

	case gateway.TransferStatusPending:
		// Still settling at the gateway. Leave the item in processing.
		log.Debugf("[PayoutReconcile] Item %d still pending at gateway", item.ID)
		return nil

	default:
		return &InvariantError{ItemID: item.ID, Detail: fmt.Sprintf("unknown transfer status %q from lookup", result.Status)}
	}
}

func (r *Reconciler) failItem(item *models.PayoutItem, to models.PayoutItemStatus, reason string) error {
	from := item.Status
	marked, err := item.MarkFailed(r.db, to, reason)
	if err != nil {
		return fmt.Errorf("mark failed (%s) failed: %w", to, err)
	}
	if marked {
		if cerr := counter.AddItemFailed(); cerr != nil {
			log.Debugf("[PayoutReconcile] Failure counter failed: %v", cerr)
		}
		metrics.CountItem(string(to))
		log.Warnf("[PayoutReconcile] %s: %s", transitionMsg(item, from, to, stuckFor(item)), reason)
	}
	return nil
}

// stuckFor is how long the item has been held by its last claim.
func stuckFor(item *models.PayoutItem) time.Duration {
	if item.ClaimedAt == nil {
		return 0
	}
	return time.Since(*item.ClaimedAt)
}
