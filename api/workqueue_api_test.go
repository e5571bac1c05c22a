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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/model"
)

func TestCreateWorkItemAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	created := &model.WorkItem{
		WorkItemID: "wrk_1",
		QueueKey:   "prompt-evals",
		Content:    "evaluate prompt 1",
		Status:     model.StatusAvailable,
	}
	mockDS.On("CreateWorkItem", mock.Anything, mock.Anything).Return(created, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"content": "evaluate prompt 1",
	})
	require.NoError(t, err)

	var response model.WorkItem
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/queues/prompt-evals/work-items",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "wrk_1", response.WorkItemID)
	mockDS.AssertExpectations(t)
}

func TestCreateWorkItemAPIRequiresContent(t *testing.T) {
	router, _ := setupRouter(t)

	payload, err := json.Marshal(map[string]interface{}{})
	require.NoError(t, err)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/queues/prompt-evals/work-items",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPollWorkItemAPI(t *testing.T) {
	router, mockDS := setupRouter(t)
	now := time.Now()

	claimed := &model.WorkItem{
		WorkItemID: "wrk_1",
		QueueKey:   "prompt-evals",
		Status:     model.StatusInProgress,
		ClaimToken: "clm_abc",
		ClaimedAt:  &now,
	}
	mockDS.On("ClaimNextWorkItem", mock.Anything, "prompt-evals", mock.Anything, mock.Anything).
		Return(claimed, nil)

	var response map[string]*model.WorkItem
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBufferString("{}"),
		Response: &response,
		Method:   "POST",
		Route:    "/queues/prompt-evals/poll",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, response["work_item"])
	assert.Equal(t, "clm_abc", response["work_item"].ClaimToken)
	mockDS.AssertExpectations(t)
}

func TestPollWorkItemAPIEmptyQueue(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("ClaimNextWorkItem", mock.Anything, "prompt-evals", mock.Anything, mock.Anything).
		Return(nil, nil)

	var response map[string]*model.WorkItem
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBufferString("{}"),
		Response: &response,
		Method:   "POST",
		Route:    "/queues/prompt-evals/poll",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, response["work_item"])
	mockDS.AssertExpectations(t)
}

func TestSubmitWorkItemAPIStaleClaim(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("CompleteWorkItem", mock.Anything, "wrk_1", "clm_old", mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrStaleClaim, "claim no longer held", nil))

	payload, err := json.Marshal(map[string]interface{}{
		"claim_token": "clm_old",
		"result":      map[string]interface{}{"score": 0.9},
	})
	require.NoError(t, err)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/work-items/wrk_1/submit",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
	mockDS.AssertExpectations(t)
}

func TestSubmitWorkItemAPIRequiresClaimToken(t *testing.T) {
	router, _ := setupRouter(t)

	payload, err := json.Marshal(map[string]interface{}{
		"result": map[string]interface{}{"score": 0.9},
	})
	require.NoError(t, err)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/work-items/wrk_1/submit",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReleaseWorkItemAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("ReleaseWorkItem", mock.Anything, "wrk_1").
		Return(model.ReleaseActionDeleted, nil)
	mockDS.On("GetWorkItem", mock.Anything, "wrk_1").
		Return(&model.WorkItem{WorkItemID: "wrk_1", Status: model.StatusAvailable}, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"mark_failed": false,
	})
	require.NoError(t, err)

	var response map[string]string
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/work-items/wrk_1/release",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "deleted", response["action"])
	mockDS.AssertExpectations(t)
}

func TestGetWorkItemAPINotFound(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("GetWorkItem", mock.Anything, "wrk_missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Work item with ID 'wrk_missing' not found", nil))

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/work-items/wrk_missing",
		Router:   router,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	mockDS.AssertExpectations(t)
}
