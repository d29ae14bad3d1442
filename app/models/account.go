package models

import "time"

// Account statuses mirrored from the identity subsystem.
const (
	AccountStatusActive    = "active"
	AccountStatusSuspended = "suspended"
)

// Account is the creator identity read model. The identity subsystem owns
// these rows; the payout engine only reads them to decide eligibility.
type Account struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"type:varchar(100);not null" json:"name"`
	Email             string    `gorm:"type:varchar(200);not null" json:"email"`
	PayoutDestination string    `gorm:"type:varchar(191);default:''" json:"payout_destination"`
	KYCVerified       bool      `gorm:"default:false;index" json:"kyc_verified"`
	Status            string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayoutEligible reports whether the account may receive payouts at all.
// The balance threshold is checked separately against the ledger.
func (a *Account) PayoutEligible() bool {
	return a.Status == AccountStatusActive && a.KYCVerified && a.PayoutDestination != ""
}
