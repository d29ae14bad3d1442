package models

import "time"

// PayoutDailyStat aggregates per-day payout activity. Rows are incremented
// by the Redis counter flush, not by the workers directly.
type PayoutDailyStat struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Date           time.Time `gorm:"type:date;not null;uniqueIndex:ux_payout_daily_stats_date" json:"date"`
	ItemsSucceeded int64     `gorm:"not null;default:0" json:"items_succeeded"`
	ItemsFailed    int64     `gorm:"not null;default:0" json:"items_failed"`
	AmountPaid     int64     `gorm:"not null;default:0" json:"amount_paid"`
	GatewayCalls   int64     `gorm:"not null;default:0" json:"gateway_calls"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
