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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/meterline/meterline/database"
	"github.com/meterline/meterline/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Work item methods

func (m *MockDataSource) CreateWorkItem(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkItem), args.Error(1)
}

func (m *MockDataSource) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkItem), args.Error(1)
}

func (m *MockDataSource) ClaimNextWorkItem(ctx context.Context, queueKey, claimToken string, timeout time.Duration) (*model.WorkItem, error) {
	args := m.Called(ctx, queueKey, claimToken, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkItem), args.Error(1)
}

func (m *MockDataSource) CompleteWorkItem(ctx context.Context, id, claimToken string, result map[string]interface{}) (*model.WorkItem, error) {
	args := m.Called(ctx, id, claimToken, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkItem), args.Error(1)
}

func (m *MockDataSource) ReleaseWorkItem(ctx context.Context, id string) (model.ReleaseAction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.ReleaseAction), args.Error(1)
}

func (m *MockDataSource) FailWorkItem(ctx context.Context, id, reason string) (model.ReleaseAction, error) {
	args := m.Called(ctx, id, reason)
	return args.Get(0).(model.ReleaseAction), args.Error(1)
}

func (m *MockDataSource) GetWorkItemsByQueue(ctx context.Context, queueKey string, limit, offset int) ([]model.WorkItem, error) {
	args := m.Called(ctx, queueKey, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WorkItem), args.Error(1)
}

// Grant methods

func (m *MockDataSource) CreateGrant(ctx context.Context, grant *model.CreditGrant, entry *model.LedgerEntry) (*model.CreditGrant, error) {
	args := m.Called(ctx, grant, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditGrant), args.Error(1)
}

func (m *MockDataSource) GetGrant(ctx context.Context, id string) (*model.CreditGrant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditGrant), args.Error(1)
}

func (m *MockDataSource) GetBalance(ctx context.Context, accountID string, horizon time.Duration) (*model.AccountBalance, error) {
	args := m.Called(ctx, accountID, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccountBalance), args.Error(1)
}

func (m *MockDataSource) DebitAccount(ctx context.Context, req database.DebitRequest) (*model.LedgerEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetActiveGrants(ctx context.Context, accountID string) ([]model.CreditGrant, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CreditGrant), args.Error(1)
}

// Ledger entry methods

func (m *MockDataSource) GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

// Consumption methods

func (m *MockDataSource) IsConsumed(ctx context.Context, accountID, workItemID string) (bool, error) {
	args := m.Called(ctx, accountID, workItemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CountConsumptions(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) GetConsumedIDs(ctx context.Context, accountID string, workItemIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, accountID, workItemIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}
