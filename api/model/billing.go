package model

// CreateGrant is the request body for issuing prepaid credit to an account.
// ExpiresAt is RFC3339; empty means the credit never expires.
type CreateGrant struct {
	AccountID string  `json:"account_id"`
	Amount    float64 `json:"amount"`
	Source    string  `json:"source"`
	Reason    string  `json:"reason"`
	ExpiresAt string  `json:"expires_at,omitempty"`
}

// ChargeRequest is the request body for billing an account for a batch of
// completed work items.
type ChargeRequest struct {
	AccountID   string   `json:"account_id"`
	WorkItemIDs []string `json:"work_item_ids"`
}
