package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditGrant is a quantity of prepaid credit with its own expiry. The
// remaining amount only ever decreases, drawn down by debits in
// soonest-expiry-first order. Grants are kept at zero for audit, never
// deleted.
type CreditGrant struct {
	ID              int64           `json:"-"`
	GrantID         string          `json:"grant_id"`
	AccountID       string          `json:"account_id"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Source          string          `json:"source"`
	Reason          string          `json:"reason"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Expired reports whether the grant's credit is no longer spendable.
func (g *CreditGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Drawable returns how much can be drawn from this grant right now.
func (g *CreditGrant) Drawable(now time.Time) decimal.Decimal {
	if g.Expired(now) {
		return decimal.Zero
	}
	return g.RemainingAmount
}

// AccountBalance is the computed view over an account's unexpired grants.
type AccountBalance struct {
	AccountID          string          `json:"account_id"`
	Available          decimal.Decimal `json:"available"`
	ExpiringSoonAmount decimal.Decimal `json:"expiring_soon_amount"`
	ExpiringSoonAt     *time.Time      `json:"expiring_soon_at,omitempty"`
}
