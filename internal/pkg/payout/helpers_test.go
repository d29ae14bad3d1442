package payout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/internal/pkg/gateway"
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
		&models.WebhookEvent{},
	))

	// SQLite tolerates one writer; a single connection keeps the worker's
	// concurrent item dispatch from tripping over table locks.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func createAccount(t *testing.T, db *gorm.DB, name, destination string) *models.Account {
	t.Helper()
	account := &models.Account{
		Name:              name,
		Email:             name + "@example.com",
		PayoutDestination: destination,
		KYCVerified:       true,
		Status:            models.AccountStatusActive,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func addCredit(t *testing.T, db *gorm.DB, accountID uint, amount int64, at time.Time) {
	t.Helper()
	entry := &models.LedgerEntry{
		AccountID:   accountID,
		Amount:      amount,
		Kind:        models.LedgerKindCredit,
		ReferenceID: fmt.Sprintf("sale-%d-%d", accountID, time.Now().UnixNano()),
		CreatedAt:   at,
	}
	require.NoError(t, db.Create(entry).Error)
}

func reloadItem(t *testing.T, db *gorm.DB, id uint) *models.PayoutItem {
	t.Helper()
	var item models.PayoutItem
	require.NoError(t, db.First(&item, id).Error)
	return &item
}

func reloadBatch(t *testing.T, db *gorm.DB, id uint) *models.PayoutBatch {
	t.Helper()
	var batch models.PayoutBatch
	require.NoError(t, db.First(&batch, id).Error)
	return &batch
}

// captureEnqueuer records enqueued chunks and report exports instead of
// touching Redis.
type captureEnqueuer struct {
	mu      sync.Mutex
	chunks  []capturedChunk
	reports []uint
}

type capturedChunk struct {
	BatchID uint
	ItemIDs []uint
}

func (e *captureEnqueuer) EnqueuePayoutChunk(batchID uint, itemIDs []uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks = append(e.chunks, capturedChunk{BatchID: batchID, ItemIDs: itemIDs})
	return nil
}

func (e *captureEnqueuer) EnqueueReportExport(batchID uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, batchID)
	return nil
}

func (e *captureEnqueuer) reportBatches() []uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint(nil), e.reports...)
}

func (e *captureEnqueuer) allItemIDs() []uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []uint
	for _, c := range e.chunks {
		ids = append(ids, c.ItemIDs...)
	}
	return ids
}

// fakeGateway routes outcomes by payout destination, counts transfer calls
// per idempotency key and tracks how many transfers overlap in flight.
type fakeGateway struct {
	mu            sync.Mutex
	calls         map[string]int
	transferErr   map[string]error                   // destination -> error
	results       map[string]*gateway.TransferResult // destination -> result
	lookups       map[string]*gateway.TransferResult // idempotency key -> result
	lookupErr     map[string]error                   // idempotency key -> error
	transferDelay time.Duration
	inFlight      int
	maxInFlight   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:       make(map[string]int),
		transferErr: make(map[string]error),
		results:     make(map[string]*gateway.TransferResult),
		lookups:     make(map[string]*gateway.TransferResult),
		lookupErr:   make(map[string]error),
	}
}

func (f *fakeGateway) Transfer(ctx context.Context, destination string, amountMinorUnits int64, idempotencyKey string) (*gateway.TransferResult, error) {
	f.mu.Lock()
	f.calls[idempotencyKey]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.transferDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if err, ok := f.transferErr[destination]; ok {
		return nil, err
	}
	if result, ok := f.results[destination]; ok {
		return result, nil
	}
	return &gateway.TransferResult{
		TransferID: "tr_" + idempotencyKey[:12],
		Status:     gateway.TransferStatusSucceeded,
	}, nil
}

func (f *fakeGateway) LookupTransfer(ctx context.Context, idempotencyKey string) (*gateway.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.lookupErr[idempotencyKey]; ok {
		return nil, err
	}
	if result, ok := f.lookups[idempotencyKey]; ok {
		return result, nil
	}
	return nil, gateway.ErrTransferNotFound
}

func (f *fakeGateway) callCount(idempotencyKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[idempotencyKey]
}

func (f *fakeGateway) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}
