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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/model"
)

func TestCreateGrantAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	created := &model.CreditGrant{
		GrantID:         "grt_1",
		AccountID:       "acc_1",
		OriginalAmount:  decimal.NewFromInt(100),
		RemainingAmount: decimal.NewFromInt(100),
		Source:          "purchase",
	}
	mockDS.On("CreateGrant", mock.Anything, mock.Anything, mock.Anything).Return(created, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"account_id": "acc_1",
		"amount":     100,
		"source":     "purchase",
		"expires_at": time.Now().Add(720 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)

	var response model.CreditGrant
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/credits",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "grt_1", response.GrantID)
	mockDS.AssertExpectations(t)
}

func TestCreateGrantAPIValidation(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing account", map[string]interface{}{"amount": 100}},
		{"zero amount", map[string]interface{}{"account_id": "acc_1", "amount": 0}},
		{"bad expiry format", map[string]interface{}{"account_id": "acc_1", "amount": 10, "expires_at": "next tuesday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.payload)
			require.NoError(t, err)

			var response map[string]interface{}
			resp, err := SetUpTestRequest(TestRequest{
				Payload:  bytes.NewBuffer(payload),
				Response: &response,
				Method:   "POST",
				Route:    "/credits",
				Router:   router,
			})
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestGetBalanceAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	balance := &model.AccountBalance{
		AccountID: "acc_1",
		Available: decimal.NewFromInt(250),
	}
	mockDS.On("GetBalance", mock.Anything, "acc_1", mock.Anything).Return(balance, nil)

	var response model.AccountBalance
	resp, err := SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/balances/acc_1",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, response.Available.Equal(decimal.NewFromInt(250)))
	mockDS.AssertExpectations(t)
}

func TestChargeBatchAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("GetConsumedIDs", mock.Anything, "acc_1", []string{"wrk_1"}).
		Return(map[string]bool{}, nil)
	mockDS.On("CountConsumptions", mock.Anything, "acc_1").Return(int64(0), nil)
	mockDS.On("DebitAccount", mock.Anything, mock.Anything).
		Return(&model.LedgerEntry{BalanceAfter: decimal.NewFromInt(9)}, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"account_id":    "acc_1",
		"work_item_ids": []string{"wrk_1"},
	})
	require.NoError(t, err)

	var response struct {
		ChargedIDs   []string `json:"charged_ids"`
		FullyCharged bool     `json:"fully_charged"`
	}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/charges",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"wrk_1"}, response.ChargedIDs)
	assert.True(t, response.FullyCharged)
	mockDS.AssertExpectations(t)
}

func TestChargeBatchAPIRequiresWorkItems(t *testing.T) {
	router, _ := setupRouter(t)

	payload, err := json.Marshal(map[string]interface{}{
		"account_id": "acc_1",
	})
	require.NoError(t, err)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/charges",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetLedgerEntriesAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	entries := []model.LedgerEntry{
		{EntryID: "lgr_2", AccountID: "acc_1", EntryType: model.EntryTypeDebit, Amount: decimal.NewFromInt(3)},
		{EntryID: "lgr_1", AccountID: "acc_1", EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(100)},
	}
	mockDS.On("GetLedgerEntries", mock.Anything, "acc_1", 50, 0).Return(entries, nil)

	var response []model.LedgerEntry
	resp, err := SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/accounts/acc_1/ledger",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, response, 2)
	assert.Equal(t, "lgr_2", response[0].EntryID)
	mockDS.AssertExpectations(t)
}

func TestChargeBatchAPIInsufficientBalanceStillPartial(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("GetConsumedIDs", mock.Anything, "acc_1", []string{"wrk_1", "wrk_2"}).
		Return(map[string]bool{}, nil)
	mockDS.On("CountConsumptions", mock.Anything, "acc_1").Return(int64(0), nil)
	mockDS.On("DebitAccount", mock.Anything, mock.MatchedBy(func(req interface{}) bool { return true })).
		Return(nil, apierror.NewAPIError(apierror.ErrInsufficientBalance, "insufficient balance", nil)).Once()
	mockDS.On("GetBalance", mock.Anything, "acc_1", mock.Anything).
		Return(&model.AccountBalance{AccountID: "acc_1", Available: decimal.Zero}, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"account_id":    "acc_1",
		"work_item_ids": []string{"wrk_1", "wrk_2"},
	})
	require.NoError(t, err)

	var response struct {
		ChargedIDs   []string `json:"charged_ids"`
		SkippedIDs   []string `json:"skipped_ids"`
		FullyCharged bool     `json:"fully_charged"`
	}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/charges",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, response.ChargedIDs)
	assert.Equal(t, []string{"wrk_1", "wrk_2"}, response.SkippedIDs)
	assert.False(t, response.FullyCharged)
	mockDS.AssertExpectations(t)
}
