package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConsumed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("acc_1", "wrk_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	consumed, err := ds.IsConsumed(context.Background(), "acc_1", "wrk_1")
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConsumedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM meterline.consumptions`)).
		WithArgs("acc_1", pq.Array([]string{"wrk_1", "wrk_2", "wrk_3"})).
		WillReturnRows(sqlmock.NewRows([]string{"work_item_id"}).AddRow("wrk_2"))

	consumed, err := ds.GetConsumedIDs(context.Background(), "acc_1", []string{"wrk_1", "wrk_2", "wrk_3"})
	require.NoError(t, err)
	assert.False(t, consumed["wrk_1"])
	assert.True(t, consumed["wrk_2"])
	assert.False(t, consumed["wrk_3"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountConsumptions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM meterline.consumptions`)).
		WithArgs("acc_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := ds.CountConsumptions(context.Background(), "acc_1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConsumedIDsEmptyInput(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	consumed, err := ds.GetConsumedIDs(context.Background(), "acc_1", nil)
	require.NoError(t, err)
	assert.Empty(t, consumed)
}
