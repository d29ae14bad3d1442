package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorly/creatorpay/app/models"
)

type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository creates a new payout repository instance
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) CreateBatchIfAbsent(batch *models.PayoutBatch) (bool, *models.PayoutBatch, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "scheduled_date"},
		},
		DoNothing: true,
	}).Create(batch)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetBatchByDate(batch.ScheduledDate)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *payoutRepository) GetBatch(id uint) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *payoutRepository) GetBatchByDate(scheduledDate time.Time) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	if err := r.db.Where("scheduled_date = ?", scheduledDate).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *payoutRepository) ListOpenBatchIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.PayoutBatch{}).
		Where("status IN ?", []models.PayoutBatchStatus{models.BatchStatusPending, models.BatchStatusProcessing}).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *payoutRepository) GetItem(id uint) (*models.PayoutItem, error) {
	var item models.PayoutItem
	if err := r.db.First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *payoutRepository) GetItemByIdempotencyKey(key string) (*models.PayoutItem, error) {
	var item models.PayoutItem
	if err := r.db.Where("idempotency_key = ?", key).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *payoutRepository) GetItemByExternalTransferID(transferID string) (*models.PayoutItem, error) {
	var item models.PayoutItem
	if err := r.db.Where("external_transfer_id = ?", transferID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *payoutRepository) ListItemsByBatch(batchID uint) ([]models.PayoutItem, error) {
	var items []models.PayoutItem
	err := r.db.Where("batch_id = ?", batchID).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *payoutRepository) SumOpenReservations(accountID uint) (int64, error) {
	var sum int64
	err := r.db.Model(&models.PayoutItem{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ? AND status IN ?", accountID,
			[]models.PayoutItemStatus{models.ItemStatusPending, models.ItemStatusProcessing}).
		Scan(&sum).Error
	return sum, err
}

func (r *payoutRepository) ListRetryCandidates(limit int) ([]models.PayoutItem, error) {
	var items []models.PayoutItem
	err := r.db.
		Where("status = ? AND attempt_count > 0 AND last_attempted_at IS NOT NULL", models.ItemStatusPending).
		Order("last_attempted_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *payoutRepository) ListNeverEnqueued(cutoff time.Time, limit int) ([]models.PayoutItem, error) {
	var items []models.PayoutItem
	err := r.db.
		Where("status = ? AND attempt_count = 0 AND created_at <= ?", models.ItemStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *payoutRepository) ListStuckProcessing(cutoff time.Time, limit int) ([]models.PayoutItem, error) {
	var items []models.PayoutItem
	err := r.db.
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?", models.ItemStatusProcessing, cutoff).
		Order("claimed_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
