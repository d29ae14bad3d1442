package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PayoutItemStatus is the lifecycle state of a single creator payout.
type PayoutItemStatus string

const (
	ItemStatusPending           PayoutItemStatus = "pending"
	ItemStatusProcessing        PayoutItemStatus = "processing"
	ItemStatusSucceeded         PayoutItemStatus = "succeeded"
	ItemStatusFailedTerminal    PayoutItemStatus = "failed_terminal"
	ItemStatusFailedNeedsReview PayoutItemStatus = "failed_needs_review"
	ItemStatusCancelled         PayoutItemStatus = "cancelled"
)

// Terminal reports whether the status is final for this item.
func (s PayoutItemStatus) Terminal() bool {
	switch s {
	case ItemStatusSucceeded, ItemStatusFailedTerminal, ItemStatusFailedNeedsReview, ItemStatusCancelled:
		return true
	}
	return false
}

// Failed reports whether the status counts toward a batch's failed_count.
func (s PayoutItemStatus) Failed() bool {
	return s == ItemStatusFailedTerminal || s == ItemStatusFailedNeedsReview
}

// PayoutItem is one creator's payout within a batch. The unique
// (batch_id, account_id) index guarantees one item per creator per run; the
// unique idempotency_key is the mutual-exclusion unit at the gateway and
// prevents a duplicated worker invocation from issuing two transfers.
type PayoutItem struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	BatchID            uint             `gorm:"not null;index;index:ux_payout_items_batch_account,unique,priority:1" json:"batch_id"`
	AccountID          uint             `gorm:"not null;index;index:ux_payout_items_batch_account,unique,priority:2" json:"account_id"`
	Amount             int64            `gorm:"not null" json:"amount"`
	Status             PayoutItemStatus `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	IdempotencyKey     string           `gorm:"type:varchar(64);not null;uniqueIndex:ux_payout_items_idempotency_key" json:"idempotency_key"`
	ExternalTransferID string           `gorm:"type:varchar(191);default:'';index" json:"external_transfer_id"`
	AttemptCount       int              `gorm:"not null;default:0" json:"attempt_count"`
	LastAttemptedAt    *time.Time       `gorm:"type:timestamp;default:null" json:"last_attempted_at,omitempty"`
	ClaimedAt          *time.Time       `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	ErrorMessage       string           `gorm:"type:text" json:"error_message"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayoutIdempotencyKey derives the deterministic gateway deduplication key
// for a (batch, account) pair.
func PayoutIdempotencyKey(batchID, accountID uint) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("payout:%d:%d", batchID, accountID)))
	return hex.EncodeToString(sum[:])
}

// BeforeCreate fills in the idempotency key when the caller did not.
func (i *PayoutItem) BeforeCreate(tx *gorm.DB) error {
	if i.IdempotencyKey == "" {
		i.IdempotencyKey = PayoutIdempotencyKey(i.BatchID, i.AccountID)
	}
	return nil
}

// Claim transitions the item pending -> processing with a conditional
// update. This is the sole concurrency-control primitive: exactly one caller
// observes rows-affected == 1, everyone else sees the item already claimed.
// The attempt counter is bumped as part of the claim so a crash after the
// claim still counts against max attempts.
func (i *PayoutItem) Claim(db *gorm.DB) (bool, error) {
	now := time.Now()
	res := db.Model(&PayoutItem{}).
		Where("id = ? AND status = ?", i.ID, ItemStatusPending).
		Updates(map[string]interface{}{
			"status":            ItemStatusProcessing,
			"claimed_at":        now,
			"last_attempted_at": now,
			"attempt_count":     gorm.Expr("attempt_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	i.Status = ItemStatusProcessing
	i.ClaimedAt = &now
	i.LastAttemptedAt = &now
	i.AttemptCount++
	return true, nil
}

// MarkSucceeded transitions processing -> succeeded, guarded on the current
// status so a concurrent reconciler/webhook cannot apply the result twice.
func (i *PayoutItem) MarkSucceeded(db *gorm.DB, externalTransferID string) (bool, error) {
	res := db.Model(&PayoutItem{}).
		Where("id = ? AND status = ?", i.ID, ItemStatusProcessing).
		Updates(map[string]interface{}{
			"status":               ItemStatusSucceeded,
			"external_transfer_id": externalTransferID,
			"error_message":        "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	i.Status = ItemStatusSucceeded
	i.ExternalTransferID = externalTransferID
	return true, nil
}

// MarkFailed transitions processing -> failed_terminal or
// failed_needs_review with the same guard.
func (i *PayoutItem) MarkFailed(db *gorm.DB, to PayoutItemStatus, reason string) (bool, error) {
	if to != ItemStatusFailedTerminal && to != ItemStatusFailedNeedsReview {
		return false, fmt.Errorf("invalid failure status %q", to)
	}
	res := db.Model(&PayoutItem{}).
		Where("id = ? AND status = ?", i.ID, ItemStatusProcessing).
		Updates(map[string]interface{}{
			"status":        to,
			"error_message": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	i.Status = to
	i.ErrorMessage = reason
	return true, nil
}

// Release transitions processing -> pending after a retryable failure,
// leaving the bumped attempt counter in place for backoff.
func (i *PayoutItem) Release(db *gorm.DB, reason string) (bool, error) {
	res := db.Model(&PayoutItem{}).
		Where("id = ? AND status = ?", i.ID, ItemStatusProcessing).
		Updates(map[string]interface{}{
			"status":        ItemStatusPending,
			"claimed_at":    nil,
			"error_message": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	i.Status = ItemStatusPending
	i.ClaimedAt = nil
	i.ErrorMessage = reason
	return true, nil
}

// Cancel transitions pending -> cancelled. Cancellation is an operator
// action and is advisory only: an item already claimed by a worker cannot
// be interrupted.
func (i *PayoutItem) Cancel(db *gorm.DB) (bool, error) {
	res := db.Model(&PayoutItem{}).
		Where("id = ? AND status = ?", i.ID, ItemStatusPending).
		Update("status", ItemStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	i.Status = ItemStatusCancelled
	return true, nil
}

// Requeue transitions failed_needs_review -> pending for an operator retry.
// Terminal validation failures stay terminal.
func (i *PayoutItem) Requeue(db *gorm.DB) (bool, error) {
	res := db.Model(&PayoutItem{}).
		Where("id = ? AND status = ?", i.ID, ItemStatusFailedNeedsReview).
		Updates(map[string]interface{}{
			"status":        ItemStatusPending,
			"claimed_at":    nil,
			"error_message": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	i.Status = ItemStatusPending
	i.ClaimedAt = nil
	return true, nil
}
