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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/meterline/meterline"
	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/internal/archive"
	redis_db "github.com/meterline/meterline/internal/redis-db"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

// processGrantExpiry handles a scheduled grant expiry reminder. The ledger
// itself excludes expired grants at query time, so the worker's only job is
// to tell the account owner that unspent credit just lapsed.
func (m *meterlineInstance) processGrantExpiry(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("meterline.billing.worker").Start(ctx, "Process Grant Expiry From Redis Queue")
	defer span.End()

	var payload meterline.GrantExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	grant, err := m.mtl.GetGrant(ctx, payload.GrantID)
	if err != nil {
		// A deleted grant has nothing left to expire.
		if apierror.Is(err, apierror.ErrNotFound) {
			return nil
		}
		return err
	}

	if !grant.RemainingAmount.IsPositive() {
		log.Println(" [*] Grant fully consumed before expiry", grant.GrantID)
		return nil
	}

	if err := meterline.SendWebhook(meterline.NewWebhook{
		Event:   "grant.expired",
		Payload: grant,
	}); err != nil {
		return err
	}

	log.Println(" [*] Grant Expired", grant.GrantID)
	return nil
}

// processArchive uploads a completed work item's result to object storage.
func (m *meterlineInstance) processArchive(_ context.Context, t *asynq.Task) error {
	var payload meterline.ArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	arch, err := archive.NewArchiver()
	if err != nil {
		log.Printf("Failed to initialize archiver: %v", err)
		return err
	}
	if arch == nil {
		// Archiving was disabled after the task was queued.
		return nil
	}

	data, err := json.Marshal(payload.Result)
	if err != nil {
		logrus.Error(err)
		return err
	}

	key, err := arch.ArchiveResult(payload.WorkItemID, data)
	if err != nil {
		log.Println("Error archiving result", err)
		return err
	}

	log.Println(" [*] Result archived", key)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.GrantExpiryQueue] = 1
	queues[cfg.Queue.ArchiveQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(m *meterlineInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.WebhookQueue, meterline.ProcessWebhook)
	mux.HandleFunc(cfg.Queue.GrantExpiryQueue, m.processGrantExpiry)
	mux.HandleFunc(cfg.Queue.ArchiveQueue, m.processArchive)
}

// workerCommands defines the "workers" command to start worker processes.
// The workers listen to the webhook, grant expiry and archive queues.
func workerCommands(m *meterlineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start meterline workers",
		Run: func(cmd *cobra.Command, args []string) {
			// Load configuration
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			// Initialize queues
			queues := initializeQueues()

			// Initialize worker server
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			// Initialize task handlers
			mux := asynq.NewServeMux()
			initializeTaskHandlers(m, mux)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring", //  Optional: if you want to serve asynqmon under a sub-path.
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			// Start asynqmon HTTP server in a new goroutine
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			// Start worker server
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
