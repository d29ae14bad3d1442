package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorly/creatorpay/app/models"
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository instance
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) AppendIfAbsent(entry *models.LedgerEntry) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "kind"},
			{Name: "reference_id"},
		},
		DoNothing: true,
	}).Create(entry)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *ledgerRepository) SumCreditsBefore(accountID uint, cutoff time.Time) (int64, error) {
	var sum int64
	err := r.db.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ? AND kind = ? AND created_at <= ?", accountID, models.LedgerKindCredit, cutoff).
		Scan(&sum).Error
	return sum, err
}

func (r *ledgerRepository) SumNonCredits(accountID uint) (int64, error) {
	var sum int64
	err := r.db.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ? AND kind <> ?", accountID, models.LedgerKindCredit).
		Scan(&sum).Error
	return sum, err
}

func (r *ledgerRepository) ListByAccount(accountID uint, offset, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
