package payout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
)

func testReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		StuckThreshold: 30 * time.Minute,
		MaxAttempts:    5,
	}
}

// stuckItem claims an item and backdates the claim past the threshold.
func stuckItem(t *testing.T, db *gorm.DB, item *models.PayoutItem) *models.PayoutItem {
	t.Helper()
	claimed, err := item.Claim(db)
	require.NoError(t, err)
	require.True(t, claimed)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.PayoutItem{}).
		Where("id = ?", item.ID).
		Update("claimed_at", past).Error)
	return reloadItem(t, db, item.ID)
}

func TestReconcileSettlesSucceededTransfer(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})
	item := stuckItem(t, db, &items[0])

	gw := newFakeGateway()
	gw.lookups[item.IdempotencyKey] = &gateway.TransferResult{
		TransferID: "tr_recovered",
		Status:     gateway.TransferStatusSucceeded,
	}

	reconciler := NewReconciler(db, repository.NewPayoutRepository(db), gw, testReconcileConfig())
	require.NoError(t, reconciler.Run(context.Background()))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusSucceeded, got.Status)
	assert.Equal(t, "tr_recovered", got.ExternalTransferID)

	var debits int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("kind = ? AND reference_id = ?", models.LedgerKindPayout, item.IdempotencyKey).
		Count(&debits).Error)
	assert.Equal(t, int64(1), debits)
}

func TestReconcileAppliesGatewayFailure(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})
	item := stuckItem(t, db, &items[0])

	gw := newFakeGateway()
	gw.lookups[item.IdempotencyKey] = &gateway.TransferResult{
		TransferID:    "tr_failed",
		Status:        gateway.TransferStatusFailed,
		FailureReason: "destination closed",
	}

	reconciler := NewReconciler(db, repository.NewPayoutRepository(db), gw, testReconcileConfig())
	require.NoError(t, reconciler.Run(context.Background()))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusFailedTerminal, got.Status)
	assert.Contains(t, got.ErrorMessage, "destination closed")
}

func TestReconcileReleasesWhenTransferNeverCreated(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})
	item := stuckItem(t, db, &items[0])

	// fakeGateway returns ErrTransferNotFound for unknown keys.
	gw := newFakeGateway()

	reconciler := NewReconciler(db, repository.NewPayoutRepository(db), gw, testReconcileConfig())
	require.NoError(t, reconciler.Run(context.Background()))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusPending, got.Status)
	assert.Nil(t, got.ClaimedAt)
	// The attempt from the original claim is preserved for backoff.
	assert.Equal(t, 1, got.AttemptCount)
}

func TestReconcileExhaustedAttemptsGoToReview(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})
	item := stuckItem(t, db, &items[0])
	require.NoError(t, db.Model(&models.PayoutItem{}).
		Where("id = ?", item.ID).
		Update("attempt_count", 5).Error)

	gw := newFakeGateway()
	reconciler := NewReconciler(db, repository.NewPayoutRepository(db), gw, testReconcileConfig())
	require.NoError(t, reconciler.Run(context.Background()))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusFailedNeedsReview, got.Status)
	assert.Equal(t, ReasonAttemptsExhausted, got.ErrorMessage)
}

func TestReconcileLeavesPendingTransferAlone(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})
	item := stuckItem(t, db, &items[0])

	gw := newFakeGateway()
	gw.lookups[item.IdempotencyKey] = &gateway.TransferResult{
		TransferID: "tr_pending",
		Status:     gateway.TransferStatusPending,
	}

	reconciler := NewReconciler(db, repository.NewPayoutRepository(db), gw, testReconcileConfig())
	require.NoError(t, reconciler.Run(context.Background()))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusProcessing, got.Status)
}

func TestReconcileSkipsFreshClaims(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	item := reloadItem(t, db, items[0].ID)
	claimed, err := item.Claim(db)
	require.NoError(t, err)
	require.True(t, claimed)

	gw := newFakeGateway()
	reconciler := NewReconciler(db, repository.NewPayoutRepository(db), gw, testReconcileConfig())
	require.NoError(t, reconciler.Run(context.Background()))

	// Claimed moments ago: not stuck, not touched.
	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusProcessing, got.Status)
}
