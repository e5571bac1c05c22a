package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Consumption is the idempotency marker proving a work item was billed to an
// account. The (account_id, work_item_id) pair is unique in the store; the
// insert racing a concurrent charge is what makes charging at-most-once.
type Consumption struct {
	ID            int64           `json:"-"`
	ConsumptionID string          `json:"consumption_id"`
	AccountID     string          `json:"account_id"`
	WorkItemID    string          `json:"work_item_id"`
	Amount        decimal.Decimal `json:"amount"`
	ConsumedAt    time.Time       `json:"consumed_at"`
}
