package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/model"

	_ "github.com/lib/pq"
)

func (d Datasource) CreateWorkItem(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error) {
	metaDataJSON, err := json.Marshal(item.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	item.WorkItemID = model.GenerateUUIDWithSuffix("wrk")
	item.Status = model.StatusAvailable
	item.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO meterline.work_items(work_item_id,queue_key,payload_ref,content,status,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.WorkItemID, item.QueueKey, item.PayloadRef, item.Content, item.Status, item.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create work item", err)
	}

	return item, nil
}

func (d Datasource) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT work_item_id, queue_key, payload_ref, content, status, COALESCE(claim_token, ''), claimed_at, completed_at, result, COALESCE(failure_reason, ''), created_at, meta_data
		FROM meterline.work_items
		WHERE work_item_id = $1
	`, id)

	item, err := scanWorkItemRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Work item with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve work item", err)
	}
	return item, nil
}

// ClaimNextWorkItem selects and claims the next eligible item for a queue in
// one atomic statement. Eligible are AVAILABLE items and IN_PROGRESS items
// whose claim is older than the timeout (abandoned claims, reclaimed lazily
// here instead of by a background sweeper). AVAILABLE items are handed out
// before abandoned claims, FIFO by creation order within each group.
// SELECT ... FOR UPDATE SKIP LOCKED closes the race between concurrent
// pollers: two callers can never both win the same row.
func (d Datasource) ClaimNextWorkItem(ctx context.Context, queueKey, claimToken string, timeout time.Duration) (*model.WorkItem, error) {
	ctx, span := otel.Tracer("queue.workitems").Start(ctx, "Claiming next work item")
	defer span.End()

	cutoff := time.Now().Add(-timeout)

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE meterline.work_items
		SET status = $4, claimed_at = NOW(), claim_token = $2
		WHERE work_item_id = (
			SELECT work_item_id FROM meterline.work_items
			WHERE queue_key = $1
			  AND (status = $5 OR (status = $4 AND claimed_at < $3))
			ORDER BY (status = $5) DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING work_item_id, queue_key, payload_ref, content, status, COALESCE(claim_token, ''), claimed_at, completed_at, result, COALESCE(failure_reason, ''), created_at, meta_data
	`, queueKey, claimToken, cutoff, model.StatusInProgress, model.StatusAvailable)

	item, err := scanWorkItemRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Nothing eligible right now. Not an error.
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim work item", err)
	}

	return item, nil
}

// CompleteWorkItem transitions IN_PROGRESS -> COMPLETED, guarded by the claim
// token handed out at claim time. A token mismatch means the claim timed out
// and the item was reclaimed by another poller; the late submitter gets
// ErrStaleClaim and must discard its result.
func (d Datasource) CompleteWorkItem(ctx context.Context, id, claimToken string, result map[string]interface{}) (*model.WorkItem, error) {
	ctx, span := otel.Tracer("queue.workitems").Start(ctx, "Completing work item")
	defer span.End()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal result", err)
	}

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE meterline.work_items
		SET status = $3, completed_at = NOW(), result = $4, claim_token = NULL
		WHERE work_item_id = $1 AND status = $5 AND claim_token = $2
		RETURNING work_item_id, queue_key, payload_ref, content, status, COALESCE(claim_token, ''), claimed_at, completed_at, result, COALESCE(failure_reason, ''), created_at, meta_data
	`, id, claimToken, model.StatusCompleted, resultJSON, model.StatusInProgress)

	item, err := scanWorkItemRow(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete work item", err)
	}

	var exists bool
	err = d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM meterline.work_items WHERE work_item_id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check work item existence", err)
	}
	if !exists {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Work item with ID '%s' not found", id), nil)
	}

	return nil, apierror.NewAPIError(apierror.ErrStaleClaim, fmt.Sprintf("Claim on work item '%s' is no longer held; result discarded", id), map[string]interface{}{
		"work_item_id": id,
	})
}

// ReleaseWorkItem drops the claim and returns the item to AVAILABLE
// immediately, without waiting for the timeout. Releasing an item that is not
// currently claimed is a no-op success; workers race to self-release after a
// timeout and must not see that as an error.
func (d Datasource) ReleaseWorkItem(ctx context.Context, id string) (model.ReleaseAction, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE meterline.work_items
		SET status = $2, claimed_at = NULL, claim_token = NULL
		WHERE work_item_id = $1 AND status = $3
	`, id, model.StatusAvailable, model.StatusInProgress)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release work item", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected > 0 {
		return model.ReleaseActionDeleted, nil
	}

	return d.releaseNoop(ctx, id)
}

// FailWorkItem transitions a claimed item to FAILED. Terminal: a failed item
// is never offered to a poller again.
func (d Datasource) FailWorkItem(ctx context.Context, id, reason string) (model.ReleaseAction, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE meterline.work_items
		SET status = $3, failure_reason = $2, claimed_at = NULL, claim_token = NULL
		WHERE work_item_id = $1 AND status = $4
	`, id, reason, model.StatusFailed, model.StatusInProgress)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark work item as failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected > 0 {
		return model.ReleaseActionMarkedFailed, nil
	}

	return d.releaseNoop(ctx, id)
}

// releaseNoop distinguishes "nothing to release" from "no such item".
func (d Datasource) releaseNoop(ctx context.Context, id string) (model.ReleaseAction, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM meterline.work_items WHERE work_item_id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check work item existence", err)
	}
	if !exists {
		return "", apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Work item with ID '%s' not found", id), nil)
	}
	return model.ReleaseActionNoop, nil
}

func (d Datasource) GetWorkItemsByQueue(ctx context.Context, queueKey string, limit, offset int) ([]model.WorkItem, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT work_item_id, queue_key, payload_ref, content, status, COALESCE(claim_token, ''), claimed_at, completed_at, result, COALESCE(failure_reason, ''), created_at, meta_data
		FROM meterline.work_items
		WHERE queue_key = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, queueKey, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve work items", err)
	}
	defer rows.Close()

	var items []model.WorkItem
	for rows.Next() {
		item, err := scanWorkItemRow(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan work item data", err)
		}
		items = append(items, *item)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over work items", err)
	}

	return items, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkItemRow(row rowScanner) (*model.WorkItem, error) {
	item := &model.WorkItem{}
	var claimedAt, completedAt sql.NullTime
	var resultJSON, metaDataJSON []byte

	err := row.Scan(
		&item.WorkItemID,
		&item.QueueKey,
		&item.PayloadRef,
		&item.Content,
		&item.Status,
		&item.ClaimToken,
		&claimedAt,
		&completedAt,
		&resultJSON,
		&item.FailureReason,
		&item.CreatedAt,
		&metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	if claimedAt.Valid {
		item.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &item.Result); err != nil {
			return nil, err
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &item.MetaData); err != nil {
			return nil, err
		}
	}

	return item, nil
}
