package repository

import (
	"gorm.io/gorm"

	"github.com/creatorly/creatorpay/app/models"
)

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Exists(id uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ListEligible returns accounts that may receive payouts: active, KYC
// verified and with a configured payout destination. The balance threshold
// is applied by the orchestrator against the ledger.
func (r *accountRepository) ListEligible() ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.
		Where("status = ? AND kyc_verified = ? AND payout_destination <> ''", models.AccountStatusActive, true).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}
