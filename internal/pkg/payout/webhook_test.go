package payout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorly/creatorpay/app/models"
)

func TestApplyTransferEventSucceededOnProcessingItem(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	item := reloadItem(t, db, items[0].ID)
	claimed, err := item.Claim(db)
	require.NoError(t, err)
	require.True(t, claimed)

	event := &TransferEvent{
		EventID:        "evt_1",
		EventType:      EventTransferSucceeded,
		TransferID:     "tr_webhook",
		IdempotencyKey: item.IdempotencyKey,
	}
	require.NoError(t, ApplyTransferEvent(db, event))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusSucceeded, got.Status)
	assert.Equal(t, "tr_webhook", got.ExternalTransferID)

	var debits int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("kind = ? AND reference_id = ?", models.LedgerKindPayout, item.IdempotencyKey).
		Count(&debits).Error)
	assert.Equal(t, int64(1), debits)
}

func TestApplyTransferEventClaimsPendingItem(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	// The worker's call timed out and the item was released; the webhook
	// arrives afterwards carrying the real outcome.
	event := &TransferEvent{
		EventID:        "evt_1",
		EventType:      EventTransferSucceeded,
		TransferID:     "tr_late",
		IdempotencyKey: items[0].IdempotencyKey,
	}
	require.NoError(t, ApplyTransferEvent(db, event))

	got := reloadItem(t, db, items[0].ID)
	assert.Equal(t, models.ItemStatusSucceeded, got.Status)
}

func TestApplyTransferEventIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	event := &TransferEvent{
		EventID:        "evt_1",
		EventType:      EventTransferSucceeded,
		TransferID:     "tr_1",
		IdempotencyKey: items[0].IdempotencyKey,
	}
	require.NoError(t, ApplyTransferEvent(db, event))
	require.NoError(t, ApplyTransferEvent(db, event))

	var debits int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("kind = ?", models.LedgerKindPayout).
		Count(&debits).Error)
	assert.Equal(t, int64(1), debits)
}

func TestApplyTransferEventFailed(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	event := &TransferEvent{
		EventID:        "evt_1",
		EventType:      EventTransferFailed,
		TransferID:     "tr_1",
		IdempotencyKey: items[0].IdempotencyKey,
		FailureReason:  "destination closed",
	}
	require.NoError(t, ApplyTransferEvent(db, event))

	got := reloadItem(t, db, items[0].ID)
	assert.Equal(t, models.ItemStatusFailedTerminal, got.Status)
	assert.Contains(t, got.ErrorMessage, "destination closed")
}

func TestApplyTransferEventIgnoresTerminalItems(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	item := reloadItem(t, db, items[0].ID)
	claimed, err := item.Claim(db)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, SettleSucceeded(db, item, "tr_first"))

	// A contradicting late event does not flip a settled item.
	event := &TransferEvent{
		EventID:        "evt_2",
		EventType:      EventTransferFailed,
		IdempotencyKey: item.IdempotencyKey,
	}
	require.NoError(t, ApplyTransferEvent(db, event))

	got := reloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusSucceeded, got.Status)
	assert.Equal(t, "tr_first", got.ExternalTransferID)
}

func TestApplyTransferEventUnknownTransfer(t *testing.T) {
	db := newTestDB(t)

	event := &TransferEvent{
		EventID:        "evt_1",
		EventType:      EventTransferSucceeded,
		TransferID:     "tr_unknown",
		IdempotencyKey: "deadbeef",
	}
	err := ApplyTransferEvent(db, event)
	assert.ErrorIs(t, err, ErrUnknownTransfer)
}

func TestApplyTransferEventMatchesByExternalTransferID(t *testing.T) {
	db := newTestDB(t)
	_, items := scheduleBatch(t, db, map[string]int64{"acct_alice": 12000})

	item := reloadItem(t, db, items[0].ID)
	claimed, err := item.Claim(db)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, SettleSucceeded(db, item, "tr_known"))

	// Event without our key still matches via the gateway's transfer id.
	event := &TransferEvent{
		EventID:    "evt_2",
		EventType:  EventTransferSucceeded,
		TransferID: "tr_known",
	}
	require.NoError(t, ApplyTransferEvent(db, event))
}
