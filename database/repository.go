/*
Copyright 2024 Meterline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	workItem    // Interface for work-item claim queue operations
	grant       // Interface for credit grant and balance operations
	ledgerEntry // Interface for append-only ledger entries
	consumption // Interface for billing idempotency records
}

// workItem defines methods for the claim queue. ClaimNextWorkItem is the one
// operation that must select and claim in a single atomic statement.
type workItem interface {
	CreateWorkItem(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error)                          // Inserts a new AVAILABLE item
	GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error)                                        // Retrieves a work item by ID
	ClaimNextWorkItem(ctx context.Context, queueKey, claimToken string, timeout time.Duration) (*model.WorkItem, error) // Atomically claims the next eligible item
	CompleteWorkItem(ctx context.Context, id, claimToken string, result map[string]interface{}) (*model.WorkItem, error) // Transitions IN_PROGRESS -> COMPLETED under the claim token
	ReleaseWorkItem(ctx context.Context, id string) (model.ReleaseAction, error)                                // Returns a claimed item to AVAILABLE
	FailWorkItem(ctx context.Context, id, reason string) (model.ReleaseAction, error)                           // Transitions a claimed item to FAILED (terminal)
	GetWorkItemsByQueue(ctx context.Context, queueKey string, limit, offset int) ([]model.WorkItem, error)      // Lists items for a queue
}

// grant defines methods for credit grants and the derived balance view.
type grant interface {
	CreateGrant(ctx context.Context, grant *model.CreditGrant, entry *model.LedgerEntry) (*model.CreditGrant, error)          // Inserts a grant plus its CREDIT ledger entry atomically
	GetGrant(ctx context.Context, id string) (*model.CreditGrant, error)                                                      // Retrieves a grant by ID
	GetBalance(ctx context.Context, accountID string, horizon time.Duration) (*model.AccountBalance, error)                   // Computes the available balance and near-expiry amounts
	DebitAccount(ctx context.Context, req DebitRequest) (*model.LedgerEntry, error)                                           // Atomic FIFO-by-expiry drawdown
	GetActiveGrants(ctx context.Context, accountID string) ([]model.CreditGrant, error)                                       // Lists unexpired grants with remaining credit
}

// ledgerEntry defines methods for the append-only audit log.
type ledgerEntry interface {
	GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error)
}

// consumption defines methods for billing idempotency markers.
type consumption interface {
	IsConsumed(ctx context.Context, accountID, workItemID string) (bool, error)
	GetConsumedIDs(ctx context.Context, accountID string, workItemIDs []string) (map[string]bool, error)
	CountConsumptions(ctx context.Context, accountID string) (int64, error)
}

// DebitRequest describes one atomic debit. When Consumption is set, the
// consumption record is inserted in the same transaction as the drawdown and
// ledger entry, so the idempotency marker and the charge commit or roll back
// together.
type DebitRequest struct {
	AccountID     string
	Amount        decimal.Decimal
	Reason        string
	ReferenceType string
	ReferenceID   string
	Consumption   *model.Consumption
}
