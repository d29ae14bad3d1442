package models

import "time"

// PayoutBatchStatus is the derived lifecycle state of a batch.
type PayoutBatchStatus string

const (
	BatchStatusPending         PayoutBatchStatus = "pending"
	BatchStatusProcessing      PayoutBatchStatus = "processing"
	BatchStatusCompleted       PayoutBatchStatus = "completed"
	BatchStatusPartiallyFailed PayoutBatchStatus = "partially_failed"
)

// Terminal reports whether the batch has reached a final state.
func (s PayoutBatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusPartiallyFailed
}

// PayoutBatch groups one scheduled payout run. At most one batch exists per
// scheduled date (unique index); the aggregate columns are always recomputed
// from item state, never written independently.
type PayoutBatch struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ScheduledDate  time.Time         `gorm:"type:date;not null;uniqueIndex:ux_payout_batches_scheduled_date" json:"scheduled_date"`
	Status         PayoutBatchStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ItemCount      int               `gorm:"not null;default:0" json:"item_count"`
	TotalAmount    int64             `gorm:"not null;default:0" json:"total_amount"`
	SucceededCount int               `gorm:"not null;default:0" json:"succeeded_count"`
	FailedCount    int               `gorm:"not null;default:0" json:"failed_count"`
	CompletedAt    *time.Time        `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
