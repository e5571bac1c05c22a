package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/model"
)

func TestGetLedgerEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM meterline.ledger_entries`)).
		WithArgs("acc_1", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"entry_id", "account_id", "entry_type", "amount", "balance_after", "reason", "reference_type", "reference_id", "created_at"}).
			AddRow("lgr_2", "acc_1", model.EntryTypeDebit, "3", "97", "charge", model.ReferenceWorkItem, "wrk_1", now).
			AddRow("lgr_1", "acc_1", model.EntryTypeCredit, "100", "100", "top-up", model.ReferenceGrant, "grt_1", now.Add(-time.Hour)))

	entries, err := ds.GetLedgerEntries(context.Background(), "acc_1", 20, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.EntryTypeDebit, entries[0].EntryType)
	assert.True(t, entries[0].SignedAmount().Equal(decimal.NewFromInt(-3)))
	assert.True(t, entries[1].BalanceAfter.Equal(decimal.NewFromInt(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
