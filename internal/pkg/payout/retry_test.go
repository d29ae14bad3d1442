package payout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/app/repository"
)

func TestBackoff(t *testing.T) {
	base := time.Hour
	max := 24 * time.Hour

	assert.Equal(t, 1*time.Hour, Backoff(1, base, max))
	assert.Equal(t, 4*time.Hour, Backoff(2, base, max))
	assert.Equal(t, 9*time.Hour, Backoff(3, base, max))
	assert.Equal(t, 16*time.Hour, Backoff(4, base, max))
	// 5^2 = 25h is capped.
	assert.Equal(t, 24*time.Hour, Backoff(5, base, max))
	// Zero attempts behaves like the first.
	assert.Equal(t, 1*time.Hour, Backoff(0, base, max))
}

func testRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay: time.Hour,
		MaxDelay:  24 * time.Hour,
		ChunkSize: 25,
	}
}

func TestRetrySchedulerEnqueuesDueItems(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000, "acct_bob": 8000})

	// Alice: released an hour and a half ago after one attempt; due.
	due := time.Now().Add(-90 * time.Minute)
	require.NoError(t, db.Model(&models.PayoutItem{}).
		Where("id = ?", items[0].ID).
		Updates(map[string]interface{}{"attempt_count": 1, "last_attempted_at": due}).Error)

	// Bob: two attempts, backoff is 4h, last attempt 1h ago; not due.
	recent := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.PayoutItem{}).
		Where("id = ?", items[1].ID).
		Updates(map[string]interface{}{"attempt_count": 2, "last_attempted_at": recent}).Error)

	enq := &captureEnqueuer{}
	scheduler := NewRetryScheduler(repository.NewPayoutRepository(db), enq, testRetryConfig())
	require.NoError(t, scheduler.Run(context.Background()))

	assert.Equal(t, []uint{items[0].ID}, enq.allItemIDs())
}

func TestRetrySchedulerRecoversNeverEnqueuedItems(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	// Simulate a crash between commit and enqueue: the item is pending,
	// never attempted, and old enough to be past the grace window.
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.PayoutItem{}).
		Where("id = ?", items[0].ID).
		Update("created_at", stale).Error)

	enq := &captureEnqueuer{}
	scheduler := NewRetryScheduler(repository.NewPayoutRepository(db), enq, testRetryConfig())
	require.NoError(t, scheduler.Run(context.Background()))

	assert.Equal(t, []uint{items[0].ID}, enq.allItemIDs())
}

func TestRetrySchedulerIgnoresFreshAndTerminalItems(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000, "acct_bob": 8000})

	// Alice is freshly created (still inside the grace window).
	// Bob is terminally failed.
	require.NoError(t, db.Model(&models.PayoutItem{}).
		Where("id = ?", items[1].ID).
		Updates(map[string]interface{}{"status": models.ItemStatusFailedTerminal}).Error)

	enq := &captureEnqueuer{}
	scheduler := NewRetryScheduler(repository.NewPayoutRepository(db), enq, testRetryConfig())
	require.NoError(t, scheduler.Run(context.Background()))

	assert.Empty(t, enq.allItemIDs())
}
