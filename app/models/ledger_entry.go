package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// LedgerEntryKind classifies a balance-affecting event.
type LedgerEntryKind string

const (
	LedgerKindCredit             LedgerEntryKind = "credit"
	LedgerKindDebit              LedgerEntryKind = "debit"
	LedgerKindPayout             LedgerEntryKind = "payout"
	LedgerKindChargebackReversal LedgerEntryKind = "chargeback_reversal"
)

// Valid reports whether the kind is one of the known ledger entry kinds.
func (k LedgerEntryKind) Valid() bool {
	switch k {
	case LedgerKindCredit, LedgerKindDebit, LedgerKindPayout, LedgerKindChargebackReversal:
		return true
	}
	return false
}

// LedgerEntry is an immutable, append-only record of a balance-affecting
// event. Amounts are signed integer minor units: credits positive, debits,
// payouts and chargeback reversals negative. The unique (kind, reference_id)
// index makes writing the same business event twice a no-op instead of a
// double booking.
type LedgerEntry struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	AccountID   uint            `gorm:"not null;index:idx_ledger_entries_account" json:"account_id"`
	Amount      int64           `gorm:"not null" json:"amount"`
	Kind        LedgerEntryKind `gorm:"type:varchar(30);not null;index:ux_ledger_entries_kind_reference,unique,priority:1" json:"kind"`
	ReferenceID string          `gorm:"type:varchar(191);not null;index:ux_ledger_entries_kind_reference,unique,priority:2" json:"reference_id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// BeforeUpdate rejects any mutation of an existing entry. The ledger is
// append-only; corrections are made by appending a reversing entry.
func (e *LedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("ledger entries are immutable")
}

// BeforeDelete rejects deletion for the same reason.
func (e *LedgerEntry) BeforeDelete(tx *gorm.DB) error {
	return errors.New("ledger entries are immutable")
}
