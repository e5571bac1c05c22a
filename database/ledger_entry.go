package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/meterline/meterline/internal/apierror"
	"github.com/meterline/meterline/model"
)

// insertLedgerEntryTx appends an entry inside an open transaction. Entries
// are only ever written alongside the mutation they describe.
func insertLedgerEntryTx(ctx context.Context, tx *sql.Tx, entry *model.LedgerEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = model.GenerateUUIDWithSuffix("lgr")
	}
	entry.CreatedAt = time.Now()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO meterline.ledger_entries(entry_id,account_id,entry_type,amount,balance_after,reason,reference_type,reference_id,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.EntryID, entry.AccountID, entry.EntryType, entry.Amount, entry.BalanceAfter, entry.Reason, entry.ReferenceType, entry.ReferenceID, entry.CreatedAt)
	return err
}

// GetLedgerEntries lists an account's entries newest first.
func (d Datasource) GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entry_id, account_id, entry_type, amount, balance_after, COALESCE(reason, ''), COALESCE(reference_type, ''), COALESCE(reference_id, ''), created_at
		FROM meterline.ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		entry := model.LedgerEntry{}
		err := rows.Scan(&entry.EntryID, &entry.AccountID, &entry.EntryType, &entry.Amount, &entry.BalanceAfter, &entry.Reason, &entry.ReferenceType, &entry.ReferenceID, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry data", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over ledger entries", err)
	}

	return entries, nil
}
