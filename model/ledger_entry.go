package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EntryTypeDebit  = "DEBIT"
	EntryTypeCredit = "CREDIT"
)

// Reference types recorded against ledger entries.
const (
	ReferenceWorkItem = "work_item"
	ReferenceGrant    = "grant"
)

// LedgerEntry is an immutable audit record of a single ledger mutation. One
// entry is appended per debit or credit, capturing the account balance after
// the mutation. Entries are never updated or deleted.
type LedgerEntry struct {
	ID            int64           `json:"-"`
	EntryID       string          `json:"entry_id"`
	AccountID     string          `json:"account_id"`
	EntryType     string          `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Reason        string          `json:"reason"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SignedAmount returns the amount with debit entries negated, matching how
// the entry moves the balance.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.EntryType == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
