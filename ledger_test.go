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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/model"
)

func TestGrantCredit(t *testing.T) {
	m, mockDS := newTestMeterline(t)

	created := &model.CreditGrant{
		GrantID:         "grt_1",
		AccountID:       "acc_1",
		OriginalAmount:  decimal.NewFromInt(100),
		RemainingAmount: decimal.NewFromInt(100),
		Source:          "purchase",
	}
	mockDS.On("CreateGrant", mock.Anything, mock.Anything, mock.Anything).Return(created, nil)

	grant, err := m.GrantCredit(context.Background(), &model.CreditGrant{
		AccountID:      "acc_1",
		OriginalAmount: decimal.NewFromInt(100),
		Source:         "purchase",
	})
	require.NoError(t, err)
	assert.Equal(t, "grt_1", grant.GrantID)
	mockDS.AssertExpectations(t)
}

func TestGrantCreditRejectsNonPositiveAmount(t *testing.T) {
	m, _ := newTestMeterline(t)

	_, err := m.GrantCredit(context.Background(), &model.CreditGrant{
		AccountID:      "acc_1",
		OriginalAmount: decimal.Zero,
	})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}

func TestGrantCreditRejectsPastExpiry(t *testing.T) {
	m, _ := newTestMeterline(t)

	past := time.Now().Add(-time.Hour)
	_, err := m.GrantCredit(context.Background(), &model.CreditGrant{
		AccountID:      "acc_1",
		OriginalAmount: decimal.NewFromInt(10),
		ExpiresAt:      &past,
	})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}

func TestGrantCreditRequiresAccount(t *testing.T) {
	m, _ := newTestMeterline(t)

	_, err := m.GrantCredit(context.Background(), &model.CreditGrant{
		OriginalAmount: decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}

func TestGetBalanceFetchesAndCaches(t *testing.T) {
	m, mockDS := newTestMeterline(t)

	balance := &model.AccountBalance{
		AccountID: "acc_1",
		Available: decimal.NewFromInt(250),
	}
	mockDS.On("GetBalance", mock.Anything, "acc_1", 72*time.Hour).Return(balance, nil).Once()

	got, err := m.GetBalance(context.Background(), "acc_1")
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(250)))

	// Second read is served from the cache; the datasource is not hit again.
	got, err = m.GetBalance(context.Background(), "acc_1")
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(250)))
	mockDS.AssertExpectations(t)
}

func TestCanAfford(t *testing.T) {
	m, mockDS := newTestMeterline(t)

	balance := &model.AccountBalance{
		AccountID: "acc_1",
		Available: decimal.NewFromInt(5),
	}
	mockDS.On("GetBalance", mock.Anything, "acc_1", mock.Anything).Return(balance, nil)

	ok, err := m.CanAfford(context.Background(), "acc_1", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CanAfford(context.Background(), "acc_1", decimal.NewFromInt(6))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetLedgerEntries(t *testing.T) {
	m, mockDS := newTestMeterline(t)

	entries := []model.LedgerEntry{
		{EntryID: "lgr_2", EntryType: model.EntryTypeDebit, Amount: decimal.NewFromInt(3)},
		{EntryID: "lgr_1", EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(100)},
	}
	mockDS.On("GetLedgerEntries", mock.Anything, "acc_1", 20, 0).Return(entries, nil)

	got, err := m.GetLedgerEntries(context.Background(), "acc_1", 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lgr_2", got[0].EntryID)
	mockDS.AssertExpectations(t)
}
