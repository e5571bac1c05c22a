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
	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/internal/notification"
	"github.com/meterline/meterline/model"
)

// GrantCredit issues a new credit grant to an account and appends the
// matching CREDIT entry to the ledger. When the grant expires, an expiry
// reminder is scheduled for it.
func (m *Meterline) GrantCredit(ctx context.Context, grant *model.CreditGrant) (*model.CreditGrant, error) {
	ctx, span := tracer.Start(ctx, "Granting credit")
	defer span.End()

	if grant.AccountID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Account ID is required", nil)
	}
	if !grant.OriginalAmount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Grant amount must be positive", grant.OriginalAmount)
	}
	if grant.ExpiresAt != nil && !grant.ExpiresAt.After(time.Now()) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Grant expiry must be in the future", grant.ExpiresAt)
	}

	grant, err := m.datasource.CreateGrant(ctx, grant, &model.LedgerEntry{Reason: grant.Reason})
	if err != nil {
		return nil, logAndRecordError(span, "error creating credit grant", err)
	}

	if err := m.queue.QueueGrantExpiry(ctx, grant); err != nil {
		notification.NotifyError(err)
	}
	if err := m.cache.Delete(ctx, balanceCacheKey(grant.AccountID)); err != nil {
		notification.NotifyError(err)
	}

	go func() {
		err := SendWebhook(NewWebhook{
			Event:   "grant.created",
			Payload: grant,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()

	return grant, nil
}

// GetBalance returns the account's available balance, served from the cache
// when fresh. The cache is invalidated on every credit and charge, so a stale
// read only survives for the configured TTL.
func (m *Meterline) GetBalance(ctx context.Context, accountID string) (*model.AccountBalance, error) {
	ctx, span := tracer.Start(ctx, "Fetching account balance")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var cached model.AccountBalance
	if err := m.cache.Get(ctx, balanceCacheKey(accountID), &cached); err == nil && cached.AccountID != "" {
		return &cached, nil
	}

	horizon := time.Duration(cfg.Billing.ExpiryHorizonHours) * time.Hour
	balance, err := m.datasource.GetBalance(ctx, accountID, horizon)
	if err != nil {
		return nil, logAndRecordError(span, "error fetching balance", err)
	}

	ttl := time.Duration(cfg.Billing.BalanceCacheTTLSecs) * time.Second
	if err := m.cache.Set(ctx, balanceCacheKey(accountID), balance, ttl); err != nil {
		notification.NotifyError(err)
	}

	return balance, nil
}

// CanAfford reports whether the account's available balance covers amount.
// This is a pre-flight convenience only; the debit itself recomputes and
// enforces the balance atomically, closing the check-then-act race.
func (m *Meterline) CanAfford(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	balance, err := m.GetBalance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return balance.Available.GreaterThanOrEqual(amount), nil
}

// GetGrant retrieves a credit grant by ID.
func (m *Meterline) GetGrant(ctx context.Context, id string) (*model.CreditGrant, error) {
	return m.datasource.GetGrant(ctx, id)
}

// GetActiveGrants lists an account's drawable grants in drawdown order.
func (m *Meterline) GetActiveGrants(ctx context.Context, accountID string) ([]model.CreditGrant, error) {
	return m.datasource.GetActiveGrants(ctx, accountID)
}

// GetLedgerEntries lists an account's ledger entries newest first.
func (m *Meterline) GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	return m.datasource.GetLedgerEntries(ctx, accountID, limit, offset)
}

func balanceCacheKey(accountID string) string {
	return fmt.Sprintf("balance:%s", accountID)
}
