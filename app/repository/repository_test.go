package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/creatorly/creatorpay/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.LedgerEntry{},
		&models.PayoutBatch{},
		&models.PayoutItem{},
	))
	return db
}

func createAccount(t *testing.T, db *gorm.DB, name string, eligible bool) *models.Account {
	t.Helper()
	account := &models.Account{
		Name:              name,
		Email:             name + "@example.com",
		PayoutDestination: "acct_" + name,
		KYCVerified:       eligible,
		Status:            models.AccountStatusActive,
	}
	if !eligible {
		account.Status = models.AccountStatusSuspended
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestCreateBatchIfAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := NewPayoutRepository(db)
	date := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	created, first, err := repo.CreateBatchIfAbsent(&models.PayoutBatch{
		ScheduledDate: date,
		Status:        models.BatchStatusPending,
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, first)

	// A second trigger for the same date returns the stored batch.
	created, second, err := repo.CreateBatchIfAbsent(&models.PayoutBatch{
		ScheduledDate: date,
		Status:        models.BatchStatusPending,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestListEligibleFiltersAccounts(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)

	eligible := createAccount(t, db, "alice", true)
	createAccount(t, db, "mallory", false)
	noDestination := &models.Account{
		Name:        "bob",
		Email:       "bob@example.com",
		KYCVerified: true,
		Status:      models.AccountStatusActive,
	}
	require.NoError(t, db.Create(noDestination).Error)

	accounts, err := repo.ListEligible()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, eligible.ID, accounts[0].ID)

	exists, err := repo.Exists(eligible.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(9999)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAppendIfAbsentDeduplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	account := createAccount(t, db, "alice", true)

	entry := models.LedgerEntry{
		AccountID:   account.ID,
		Amount:      -5000,
		Kind:        models.LedgerKindPayout,
		ReferenceID: "key-1",
	}
	written, err := repo.AppendIfAbsent(&entry)
	require.NoError(t, err)
	assert.True(t, written)

	duplicate := models.LedgerEntry{
		AccountID:   account.ID,
		Amount:      -5000,
		Kind:        models.LedgerKindPayout,
		ReferenceID: "key-1",
	}
	written, err = repo.AppendIfAbsent(&duplicate)
	require.NoError(t, err)
	assert.False(t, written)

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLedgerSums(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	account := createAccount(t, db, "alice", true)

	now := time.Now()
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-time.Hour)
	for i, entry := range []models.LedgerEntry{
		{AccountID: account.ID, Amount: 10000, Kind: models.LedgerKindCredit, CreatedAt: old},
		{AccountID: account.ID, Amount: 4000, Kind: models.LedgerKindCredit, CreatedAt: recent},
		{AccountID: account.ID, Amount: -3000, Kind: models.LedgerKindPayout},
		{AccountID: account.ID, Amount: -1000, Kind: models.LedgerKindChargebackReversal},
	} {
		entry.ReferenceID = fmt.Sprintf("ref-%d", i)
		require.NoError(t, db.Create(&entry).Error)
	}

	cutoff := now.Add(-7 * 24 * time.Hour)
	released, err := repo.SumCreditsBefore(account.ID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), released)

	nonCredits, err := repo.SumNonCredits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-4000), nonCredits)

	entries, err := repo.ListByAccount(account.ID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPayoutItemLookups(t *testing.T) {
	db := newTestDB(t)
	repo := NewPayoutRepository(db)
	account := createAccount(t, db, "alice", true)

	batch := &models.PayoutBatch{
		ScheduledDate: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Status:        models.BatchStatusPending,
	}
	require.NoError(t, db.Create(batch).Error)

	item := &models.PayoutItem{
		BatchID:            batch.ID,
		AccountID:          account.ID,
		Amount:             5000,
		Status:             models.ItemStatusPending,
		IdempotencyKey:     models.PayoutIdempotencyKey(batch.ID, account.ID),
		ExternalTransferID: "tr_1",
	}
	require.NoError(t, db.Create(item).Error)

	byKey, err := repo.GetItemByIdempotencyKey(item.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, item.ID, byKey.ID)

	byTransfer, err := repo.GetItemByExternalTransferID("tr_1")
	require.NoError(t, err)
	assert.Equal(t, item.ID, byTransfer.ID)

	reserved, err := repo.SumOpenReservations(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), reserved)

	ids, err := repo.ListOpenBatchIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint{batch.ID}, ids)
}
