package database

import (
	"context"

	"github.com/lib/pq"

	"github.com/meterline/meterline/internal/apierror"
)

// IsConsumed reports whether a work item has already been billed to the
// account. Advisory only: the unique constraint hit inside DebitAccount is
// what actually enforces at-most-once billing.
func (d Datasource) IsConsumed(ctx context.Context, accountID, workItemID string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM meterline.consumptions WHERE account_id = $1 AND work_item_id = $2)
	`, accountID, workItemID).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check consumption", err)
	}
	return exists, nil
}

// CountConsumptions returns how many work items the account has been billed
// for, which positions the account on its pricing tier.
func (d Datasource) CountConsumptions(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM meterline.consumptions WHERE account_id = $1
	`, accountID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count consumptions", err)
	}
	return count, nil
}

// GetConsumedIDs returns which of the given work items the account has
// already been billed for, in one round trip.
func (d Datasource) GetConsumedIDs(ctx context.Context, accountID string, workItemIDs []string) (map[string]bool, error) {
	consumed := make(map[string]bool, len(workItemIDs))
	if len(workItemIDs) == 0 {
		return consumed, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT work_item_id FROM meterline.consumptions WHERE account_id = $1 AND work_item_id = ANY($2)
	`, accountID, pq.Array(workItemIDs))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve consumptions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan consumption data", err)
		}
		consumed[id] = true
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over consumptions", err)
	}

	return consumed, nil
}
