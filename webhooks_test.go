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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/model"
)

func storeWebhookConfig(t *testing.T, redisAddr, webhookURL string) {
	t.Helper()
	cnf := &config.Configuration{
		Redis: config.RedisConfig{Dns: redisAddr},
		Queue: config.QueueConfig{WebhookQueue: "webhook_queue_test"},
	}
	cnf.Notification.Webhook.Url = webhookURL
	config.ConfigStore.Store(cnf)
}

func TestSendWebhook(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	storeWebhookConfig(t, mr.Addr(), "https://localhost:5001/webhook")

	err = SendWebhook(NewWebhook{
		Event:   "work_item.completed",
		Payload: &model.WorkItem{WorkItemID: "wrk_1", QueueKey: "prompt-evals"},
	})
	assert.NoError(t, err)

	// Verify that the task was enqueued
	tasks := mr.Keys()
	t.Log(tasks)
	assert.NotEmpty(t, tasks)
}

func TestProcessWebhookDeliverySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"received": true})
	}))
	defer server.Close()

	storeWebhookConfig(t, "localhost:6379", server.URL)

	err := processHTTP(NewWebhook{Event: "work_item.completed"})
	assert.NoError(t, err)
}

func TestProcessWebhookRetriesOnServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	storeWebhookConfig(t, "localhost:6379", server.URL)

	payload, err := json.Marshal(NewWebhook{Event: "work_item.failed"})
	require.NoError(t, err)
	task := asynq.NewTask("webhook_queue_test", payload)

	// A receiver that keeps answering 5xx must surface an error so asynq can
	// reschedule the task, and the backoff loop must have retried first.
	err = ProcessWebhook(context.Background(), task)
	require.Error(t, err)
	assert.Greater(t, atomic.LoadInt32(&attempts), int32(1))
}

func TestProcessWebhookRecoversMidRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"received": true})
	}))
	defer server.Close()

	storeWebhookConfig(t, "localhost:6379", server.URL)

	payload, err := json.Marshal(NewWebhook{Event: "charge.completed"})
	require.NoError(t, err)
	task := asynq.NewTask("webhook_queue_test", payload)

	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}
