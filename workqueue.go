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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/internal/notification"
	"github.com/meterline/meterline/model"
)

var (
	tracer = otel.Tracer("Work queue")
)

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// CreateWorkItem enqueues a new evaluable unit of work. The item starts
// AVAILABLE and is offered to pollers in creation order.
func (m *Meterline) CreateWorkItem(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error) {
	ctx, span := tracer.Start(ctx, "Creating work item")
	defer span.End()

	if item.QueueKey == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Queue key is required", nil)
	}

	item, err := m.datasource.CreateWorkItem(ctx, item)
	if err != nil {
		return nil, logAndRecordError(span, "error creating work item", err)
	}

	m.postWorkItemActions(ctx, item)
	return item, nil
}

// Poll claims the next eligible work item on a queue for the calling worker.
// Returns nil when nothing is eligible; an empty queue is not an error. The
// returned item carries a fresh claim token which the worker must present on
// submit.
func (m *Meterline) Poll(ctx context.Context, queueKey string) (*model.WorkItem, error) {
	ctx, span := tracer.Start(ctx, "Polling work queue")
	defer span.End()

	if queueKey == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Queue key is required", nil)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.Billing.ClaimTimeoutSec) * time.Second
	claimToken := model.GenerateUUIDWithSuffix("clm")

	item, err := m.datasource.ClaimNextWorkItem(ctx, queueKey, claimToken, timeout)
	if err != nil {
		return nil, logAndRecordError(span, "error claiming work item", err)
	}
	if item == nil {
		return nil, nil
	}

	m.postWorkItemActions(ctx, item)
	return item, nil
}

// SubmitResult records the result for a claimed work item and completes it.
// The claim token must match the one handed out at claim time; otherwise the
// claim went stale, the result is discarded, and the caller gets an error
// telling it so.
func (m *Meterline) SubmitResult(ctx context.Context, id, claimToken string, result map[string]interface{}) (*model.WorkItem, error) {
	ctx, span := tracer.Start(ctx, "Submitting work item result")
	defer span.End()

	if claimToken == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Claim token is required", nil)
	}

	item, err := m.datasource.CompleteWorkItem(ctx, id, claimToken, result)
	if err != nil {
		return nil, logAndRecordError(span, "error completing work item", err)
	}

	if err := m.queue.QueueArchive(ctx, item); err != nil {
		// Archival is best effort; the completion already committed.
		notification.NotifyError(err)
	}

	m.postWorkItemActions(ctx, item)
	return item, nil
}

// ReleaseWorkItem gives up a claim. With markFailed the item goes to FAILED
// and is never offered again; otherwise it returns to AVAILABLE immediately.
// Releasing an item whose claim is already gone is a no-op success.
func (m *Meterline) ReleaseWorkItem(ctx context.Context, id string, markFailed bool, reason string) (model.ReleaseAction, error) {
	ctx, span := tracer.Start(ctx, "Releasing work item")
	defer span.End()

	var action model.ReleaseAction
	var err error
	if markFailed {
		action, err = m.datasource.FailWorkItem(ctx, id, reason)
	} else {
		action, err = m.datasource.ReleaseWorkItem(ctx, id)
	}
	if err != nil {
		return "", logAndRecordError(span, "error releasing work item", err)
	}

	if action != model.ReleaseActionNoop {
		item, getErr := m.datasource.GetWorkItem(ctx, id)
		if getErr == nil {
			m.postWorkItemActions(ctx, item)
		}
	}
	return action, nil
}

// GetWorkItem retrieves a work item by ID.
func (m *Meterline) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	return m.datasource.GetWorkItem(ctx, id)
}

// GetWorkItemsByQueue lists a queue's items in creation order.
func (m *Meterline) GetWorkItemsByQueue(ctx context.Context, queueKey string, limit, offset int) ([]model.WorkItem, error) {
	return m.datasource.GetWorkItemsByQueue(ctx, queueKey, limit, offset)
}

// postWorkItemActions emits the status webhook for an item asynchronously.
func (m *Meterline) postWorkItemActions(_ context.Context, item *model.WorkItem) {
	go func() {
		err := SendWebhook(NewWebhook{
			Event:   getEventFromStatus(item.Status),
			Payload: item,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}
