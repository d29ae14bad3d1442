package payout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorly/creatorpay/app/models"
)

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MinimumPayout: 5000, // 50.00
		Holdback:      7 * 24 * time.Hour,
		ChunkSize:     25,
		Enabled:       true,
	}
}

func TestRunScheduledBatchSelectsEligibleAccounts(t *testing.T) {
	db := newTestDB(t)
	enq := &captureEnqueuer{}
	scheduler := NewScheduler(db, enq, testSchedulerConfig())

	old := time.Now().Add(-8 * 24 * time.Hour)
	a := createAccount(t, db, "alice", "acct_alice")
	addCredit(t, db, a.ID, 12000, old)
	b := createAccount(t, db, "bob", "acct_bob")
	addCredit(t, db, b.ID, 4500, old) // below minimum
	c := createAccount(t, db, "carol", "acct_carol")
	addCredit(t, db, c.ID, 8000, old)

	batch, created, err := scheduler.RunScheduledBatch(context.Background(), time.Now())
	require.NoError(t, err)
	require.True(t, created)

	assert.Equal(t, 2, batch.ItemCount)
	assert.Equal(t, int64(20000), batch.TotalAmount)

	var items []models.PayoutItem
	require.NoError(t, db.Where("batch_id = ?", batch.ID).Order("account_id ASC").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].AccountID)
	assert.Equal(t, int64(12000), items[0].Amount)
	assert.Equal(t, c.ID, items[1].AccountID)
	assert.Equal(t, int64(8000), items[1].Amount)
	for _, item := range items {
		assert.Equal(t, models.ItemStatusPending, item.Status)
		assert.Equal(t, models.PayoutIdempotencyKey(batch.ID, item.AccountID), item.IdempotencyKey)
	}

	assert.ElementsMatch(t, []uint{items[0].ID, items[1].ID}, enq.allItemIDs())
}

func TestRunScheduledBatchIsIdempotentPerDate(t *testing.T) {
	db := newTestDB(t)
	enq := &captureEnqueuer{}
	scheduler := NewScheduler(db, enq, testSchedulerConfig())

	a := createAccount(t, db, "alice", "acct_alice")
	addCredit(t, db, a.ID, 10000, time.Now().Add(-8*24*time.Hour))

	day := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	first, created, err := scheduler.RunScheduledBatch(context.Background(), day)
	require.NoError(t, err)
	require.True(t, created)

	// Same calendar date, different time of day.
	second, created, err := scheduler.RunScheduledBatch(context.Background(), day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var batchCount, itemCount int64
	require.NoError(t, db.Model(&models.PayoutBatch{}).Count(&batchCount).Error)
	require.NoError(t, db.Model(&models.PayoutItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(1), batchCount)
	assert.Equal(t, int64(1), itemCount)

	// Only the first run enqueued anything.
	assert.Len(t, enq.allItemIDs(), 1)
}

func TestRunScheduledBatchSkipsIneligibleAccounts(t *testing.T) {
	db := newTestDB(t)
	enq := &captureEnqueuer{}
	scheduler := NewScheduler(db, enq, testSchedulerConfig())

	old := time.Now().Add(-8 * 24 * time.Hour)

	noKYC := createAccount(t, db, "nokyc", "acct_nokyc")
	require.NoError(t, db.Model(noKYC).Update("kyc_verified", false).Error)
	addCredit(t, db, noKYC.ID, 10000, old)

	suspended := createAccount(t, db, "suspended", "acct_suspended")
	require.NoError(t, db.Model(suspended).Update("status", models.AccountStatusSuspended).Error)
	addCredit(t, db, suspended.ID, 10000, old)

	noDestination := createAccount(t, db, "nodest", "")
	addCredit(t, db, noDestination.ID, 10000, old)

	// Credits still inside the holdback window do not count.
	recent := createAccount(t, db, "recent", "acct_recent")
	addCredit(t, db, recent.ID, 10000, time.Now().Add(-24*time.Hour))

	batch, created, err := scheduler.RunScheduledBatch(context.Background(), time.Now())
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 0, batch.ItemCount)
	assert.Empty(t, enq.allItemIDs())
}

func TestRunScheduledBatchDisabled(t *testing.T) {
	db := newTestDB(t)
	cfg := testSchedulerConfig()
	cfg.Enabled = false
	scheduler := NewScheduler(db, &captureEnqueuer{}, cfg)

	_, _, err := scheduler.RunScheduledBatch(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrPayoutsDisabled)
}

func TestChunkItemIDs(t *testing.T) {
	ids := []uint{1, 2, 3, 4, 5, 6, 7}

	chunks := ChunkItemIDs(ids, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []uint{1, 2, 3}, chunks[0])
	assert.Equal(t, []uint{4, 5, 6}, chunks[1])
	assert.Equal(t, []uint{7}, chunks[2])

	assert.Nil(t, ChunkItemIDs(nil, 3))
}
