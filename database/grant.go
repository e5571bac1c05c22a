package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/model"
)

// CreateGrant inserts a credit grant together with its CREDIT ledger entry in
// one transaction. The entry's balance_after is computed inside the
// transaction so concurrent credits cannot interleave between the two writes.
func (d Datasource) CreateGrant(ctx context.Context, grant *model.CreditGrant, entry *model.LedgerEntry) (*model.CreditGrant, error) {
	ctx, span := otel.Tracer("ledger.grants").Start(ctx, "Creating credit grant")
	defer span.End()

	grant.GrantID = model.GenerateUUIDWithSuffix("grt")
	grant.RemainingAmount = grant.OriginalAmount
	grant.CreatedAt = time.Now()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meterline.credit_grants(grant_id,account_id,original_amount,remaining_amount,source,reason,expires_at,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, grant.GrantID, grant.AccountID, grant.OriginalAmount, grant.RemainingAmount, grant.Source, grant.Reason, grant.ExpiresAt, grant.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create credit grant", err)
	}

	balanceAfter, err := availableBalanceTx(ctx, tx, grant.AccountID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute balance", err)
	}

	entry.AccountID = grant.AccountID
	entry.EntryType = model.EntryTypeCredit
	entry.Amount = grant.OriginalAmount
	entry.BalanceAfter = balanceAfter
	entry.ReferenceType = model.ReferenceGrant
	entry.ReferenceID = grant.GrantID
	if err := insertLedgerEntryTx(ctx, tx, entry); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	return grant, nil
}

func (d Datasource) GetGrant(ctx context.Context, id string) (*model.CreditGrant, error) {
	grant := &model.CreditGrant{}
	var expiresAt sql.NullTime

	err := d.Conn.QueryRowContext(ctx, `
		SELECT grant_id, account_id, original_amount, remaining_amount, COALESCE(source, ''), COALESCE(reason, ''), expires_at, created_at
		FROM meterline.credit_grants
		WHERE grant_id = $1
	`, id).Scan(&grant.GrantID, &grant.AccountID, &grant.OriginalAmount, &grant.RemainingAmount, &grant.Source, &grant.Reason, &expiresAt, &grant.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Grant with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve grant", err)
	}
	if expiresAt.Valid {
		grant.ExpiresAt = &expiresAt.Time
	}

	return grant, nil
}

// GetBalance computes the available balance over unexpired grants, plus the
// slice of it that expires within the horizon. An account nobody has credited
// yet reports a zero balance rather than an error.
func (d Datasource) GetBalance(ctx context.Context, accountID string, horizon time.Duration) (*model.AccountBalance, error) {
	ctx, span := otel.Tracer("ledger.grants").Start(ctx, "Computing account balance")
	defer span.End()

	horizonCutoff := time.Now().Add(horizon)
	balance := &model.AccountBalance{AccountID: accountID}
	var expiringSoonAt sql.NullTime

	err := d.Conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(remaining_amount) FILTER (WHERE expires_at IS NULL OR expires_at > NOW()), 0),
			COALESCE(SUM(remaining_amount) FILTER (WHERE expires_at > NOW() AND expires_at <= $2), 0),
			MIN(expires_at) FILTER (WHERE expires_at > NOW() AND remaining_amount > 0)
		FROM meterline.credit_grants
		WHERE account_id = $1
	`, accountID, horizonCutoff).Scan(&balance.Available, &balance.ExpiringSoonAmount, &expiringSoonAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute balance", err)
	}
	if expiringSoonAt.Valid {
		balance.ExpiringSoonAt = &expiringSoonAt.Time
	}

	return balance, nil
}

// DebitAccount draws the requested amount across the account's unexpired
// grants, soonest expiry first, all or nothing. The grant rows are locked FOR
// UPDATE for the duration, so concurrent debits against the same account
// serialize and can never overspend. When the request carries a consumption
// marker, it is inserted in the same transaction; a unique violation there
// means the work item was already billed, and the whole debit rolls back.
func (d Datasource) DebitAccount(ctx context.Context, req DebitRequest) (*model.LedgerEntry, error) {
	ctx, span := otel.Tracer("ledger.grants").Start(ctx, "Debiting account")
	defer span.End()

	if !req.Amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Debit amount must be positive", req.Amount)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT grant_id, remaining_amount
		FROM meterline.credit_grants
		WHERE account_id = $1
		  AND remaining_amount > 0
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY expires_at ASC NULLS LAST, created_at ASC
		FOR UPDATE
	`, req.AccountID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock credit grants", err)
	}

	type drawable struct {
		grantID   string
		remaining decimal.Decimal
	}
	var grants []drawable
	available := decimal.Zero
	for rows.Next() {
		var g drawable
		if err := rows.Scan(&g.grantID, &g.remaining); err != nil {
			rows.Close()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan grant data", err)
		}
		grants = append(grants, g)
		available = available.Add(g.remaining)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over grants", err)
	}
	rows.Close()

	if available.LessThan(req.Amount) {
		return nil, apierror.NewAPIError(apierror.ErrInsufficientBalance,
			fmt.Sprintf("Account '%s' has insufficient balance", req.AccountID),
			map[string]interface{}{
				"required":  req.Amount,
				"available": available,
			})
	}

	// Drawdown, soonest expiry first. The lock order above fixes the order
	// here.
	remaining := req.Amount
	for _, g := range grants {
		if remaining.IsZero() {
			break
		}
		draw := decimal.Min(g.remaining, remaining)
		_, err := tx.ExecContext(ctx, `
			UPDATE meterline.credit_grants SET remaining_amount = remaining_amount - $2 WHERE grant_id = $1
		`, g.grantID, draw)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to draw down grant", err)
		}
		remaining = remaining.Sub(draw)
	}

	entry := &model.LedgerEntry{
		AccountID:     req.AccountID,
		EntryType:     model.EntryTypeDebit,
		Amount:        req.Amount,
		BalanceAfter:  available.Sub(req.Amount),
		Reason:        req.Reason,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	}
	if err := insertLedgerEntryTx(ctx, tx, entry); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
	}

	if req.Consumption != nil {
		c := req.Consumption
		c.ConsumptionID = model.GenerateUUIDWithSuffix("cns")
		c.AccountID = req.AccountID
		c.Amount = req.Amount
		c.ConsumedAt = time.Now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meterline.consumptions(consumption_id,account_id,work_item_id,amount,consumed_at)
			VALUES ($1,$2,$3,$4,$5)
		`, c.ConsumptionID, c.AccountID, c.WorkItemID, c.Amount, c.ConsumedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return nil, apierror.NewAPIError(apierror.ErrDuplicateConsumption,
					fmt.Sprintf("Work item '%s' was already billed to account '%s'", c.WorkItemID, req.AccountID),
					map[string]interface{}{
						"work_item_id": c.WorkItemID,
						"account_id":   req.AccountID,
					})
			}
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record consumption", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	return entry, nil
}

func (d Datasource) GetActiveGrants(ctx context.Context, accountID string) ([]model.CreditGrant, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT grant_id, account_id, original_amount, remaining_amount, COALESCE(source, ''), COALESCE(reason, ''), expires_at, created_at
		FROM meterline.credit_grants
		WHERE account_id = $1
		  AND remaining_amount > 0
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY expires_at ASC NULLS LAST, created_at ASC
	`, accountID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve grants", err)
	}
	defer rows.Close()

	var grants []model.CreditGrant
	for rows.Next() {
		grant := model.CreditGrant{}
		var expiresAt sql.NullTime
		err := rows.Scan(&grant.GrantID, &grant.AccountID, &grant.OriginalAmount, &grant.RemainingAmount, &grant.Source, &grant.Reason, &expiresAt, &grant.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan grant data", err)
		}
		if expiresAt.Valid {
			grant.ExpiresAt = &expiresAt.Time
		}
		grants = append(grants, grant)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over grants", err)
	}

	return grants, nil
}

// availableBalanceTx sums unexpired credit inside an open transaction.
func availableBalanceTx(ctx context.Context, tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(remaining_amount), 0)
		FROM meterline.credit_grants
		WHERE account_id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, accountID).Scan(&available)
	return available, err
}
