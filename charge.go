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

package meterline

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/database"
	"github.com/meterline/meterline/internal/apierror"
	redlock "github.com/meterline/meterline/internal/lock"
	"github.com/meterline/meterline/internal/notification"
	"github.com/meterline/meterline/model"
)

// ChargeResult reports what a batch charge actually did. A batch stops at the
// first work item the balance cannot cover; everything before it stays
// charged, everything from it on is skipped.
type ChargeResult struct {
	AccountID        string          `json:"account_id"`
	ChargedIDs       []string        `json:"charged_ids"`
	SkippedIDs       []string        `json:"skipped_ids"`
	TotalCharged     decimal.Decimal `json:"total_charged"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	FullyCharged     bool            `json:"fully_charged"`
}

// Charge bills an account for a batch of completed work items, in input
// order. Each item is debited in its own transaction together with its
// consumption marker, so a crash mid-batch leaves only fully billed items
// behind. Items already billed are skipped, not re-billed. The per-account
// redis lock keeps concurrent batches from interleaving; the database unique
// constraint is what actually guarantees at-most-once billing.
func (m *Meterline) Charge(ctx context.Context, accountID string, workItemIDs []string) (*ChargeResult, error) {
	ctx, span := tracer.Start(ctx, "Charging work item batch")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Account ID is required", nil)
	}
	if len(workItemIDs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "At least one work item is required", nil)
	}
	if len(workItemIDs) > cfg.Billing.MaxChargeBatchSize {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("Batch exceeds the maximum of %d work items", cfg.Billing.MaxChargeBatchSize),
			len(workItemIDs))
	}

	locker, err := m.acquireChargeLock(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "error acquiring charge lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			notification.NotifyError(err)
		}
	}()

	result := &ChargeResult{
		AccountID:    accountID,
		TotalCharged: decimal.Zero,
	}

	alreadyConsumed, err := m.datasource.GetConsumedIDs(ctx, accountID, workItemIDs)
	if err != nil {
		return nil, logAndRecordError(span, "error checking consumed work items", err)
	}
	consumedSoFar, err := m.datasource.CountConsumptions(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "error counting consumptions", err)
	}

	for i, id := range workItemIDs {
		if alreadyConsumed[id] {
			result.SkippedIDs = append(result.SkippedIDs, id)
			continue
		}

		price := m.pricing.UnitPrice(consumedSoFar)
		entry, err := m.datasource.DebitAccount(ctx, debitForWorkItem(accountID, id, price))
		if err != nil {
			if apierror.Is(err, apierror.ErrDuplicateConsumption) {
				// Lost the race to a concurrent charge; treat as already billed.
				result.SkippedIDs = append(result.SkippedIDs, id)
				continue
			}
			if apierror.Is(err, apierror.ErrInsufficientBalance) {
				// Out of credit; the rest of the batch cannot be cheaper.
				result.SkippedIDs = append(result.SkippedIDs, workItemIDs[i:]...)
				break
			}
			return nil, logAndRecordError(span, "error debiting account", err)
		}

		result.ChargedIDs = append(result.ChargedIDs, id)
		result.TotalCharged = result.TotalCharged.Add(price)
		result.RemainingBalance = entry.BalanceAfter
		consumedSoFar++
	}

	result.FullyCharged = len(result.SkippedIDs) == 0

	if err := m.cache.Delete(ctx, balanceCacheKey(accountID)); err != nil {
		notification.NotifyError(err)
	}
	if len(result.ChargedIDs) == 0 {
		// Nothing debited; report the live balance instead of the zero value.
		horizon := time.Duration(cfg.Billing.ExpiryHorizonHours) * time.Hour
		balance, err := m.datasource.GetBalance(ctx, accountID, horizon)
		if err != nil {
			return nil, logAndRecordError(span, "error fetching balance", err)
		}
		result.RemainingBalance = balance.Available
	}

	go func() {
		err := SendWebhook(NewWebhook{
			Event:   "charge.completed",
			Payload: result,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()

	return result, nil
}

func (m *Meterline) acquireChargeLock(ctx context.Context, accountID string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(m.redis, fmt.Sprintf("charge:%s", accountID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, time.Minute, 10*time.Second); err != nil {
		return nil, err
	}
	return locker, nil
}

func debitForWorkItem(accountID, workItemID string, price decimal.Decimal) database.DebitRequest {
	return database.DebitRequest{
		AccountID:     accountID,
		Amount:        price,
		Reason:        fmt.Sprintf("charge for work item %s", workItemID),
		ReferenceType: model.ReferenceWorkItem,
		ReferenceID:   workItemID,
		Consumption:   &model.Consumption{WorkItemID: workItemID},
	}
}
