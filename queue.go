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
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meterline/meterline/config"
	redis_db "github.com/meterline/meterline/internal/redis-db"
	"github.com/meterline/meterline/model"
)

// Queue wraps the asynq client used for background tasks: webhook delivery,
// grant expiry reminders and result archival.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// GrantExpiryPayload is the task payload for a scheduled grant expiry
// reminder.
type GrantExpiryPayload struct {
	GrantID   string    `json:"grant_id"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArchivePayload is the task payload for archiving a completed work item's
// result to object storage.
type ArchivePayload struct {
	WorkItemID string                 `json:"work_item_id"`
	Result     map[string]interface{} `json:"result"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueGrantExpiry schedules a reminder task to fire when the grant's credit
// expires, so account owners hear about expiring credit instead of silently
// losing it. Scheduling is separate from the grant insert; a lost reminder
// never affects the ledger.
func (q *Queue) queueGrantExpiry(grant *model.CreditGrant) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(GrantExpiryPayload{
		GrantID:   grant.GrantID,
		AccountID: grant.AccountID,
		ExpiresAt: *grant.ExpiresAt,
	})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(grant.GrantID),
		asynq.Queue(cfg.Queue.GrantExpiryQueue),
		asynq.ProcessIn(time.Until(*grant.ExpiresAt)),
	}
	task := asynq.NewTask(cfg.Queue.GrantExpiryQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued grant expiry reminder: %+v", grant.GrantID)
	return nil
}

// QueueGrantExpiry schedules an expiry reminder for a grant. Grants without
// an expiry never need one.
func (q *Queue) QueueGrantExpiry(_ context.Context, grant *model.CreditGrant) error {
	if grant.ExpiresAt != nil {
		return q.queueGrantExpiry(grant)
	}
	return nil
}

// QueueArchive enqueues a completed work item's result for upload to object
// storage. Skipped entirely when archiving is disabled.
func (q *Queue) QueueArchive(ctx context.Context, item *model.WorkItem) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if !cfg.Archive.Enabled {
		return nil
	}

	payload, err := json.Marshal(ArchivePayload{
		WorkItemID: item.WorkItemID,
		Result:     item.Result,
	})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(item.WorkItemID),
		asynq.Queue(cfg.Queue.ArchiveQueue),
	}
	task := asynq.NewTask(cfg.Queue.ArchiveQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task, asynq.MaxRetry(cfg.Queue.MaxRetryAttempts))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued archive task: %+v", item.WorkItemID)
	return nil
}
