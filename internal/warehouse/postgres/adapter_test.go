package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Adapter{db: db}, mock
}

func TestReplace_TruncatesAndInsertsInOneTransaction(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	insert := insertQuery("Dim_Subject", []string{"subject_sk", "subject_id_nk", "subject_name"})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE Dim_Subject")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(insert))
	mock.ExpectExec(regexp.QuoteMeta(insert)).
		WithArgs(int64(1), int64(1), "Mathematics").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insert)).
		WithArgs(int64(2), int64(2), "Physics").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.Replace(context.Background(), "Dim_Subject",
		[]string{"subject_sk", "subject_id_nk", "subject_name"},
		[][]any{
			{int64(1), int64(1), "Mathematics"},
			{int64(2), int64(2), "Physics"},
		})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_FirstFailedInsertRollsBack(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	insert := insertQuery("Fact_Sales", []string{"sales_id"})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE Fact_Sales")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(insert))
	mock.ExpectExec(regexp.QuoteMeta(insert)).
		WithArgs(int64(1)).
		WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	err := adapter.Replace(context.Background(), "Fact_Sales",
		[]string{"sales_id"}, [][]any{{int64(1)}, {int64(2)}})

	require.Error(t, err)
	require.Contains(t, err.Error(), "row 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_RejectsSuspectIdentifiers(t *testing.T) {
	adapter, _ := newMockAdapter(t)
	ctx := context.Background()

	err := adapter.Replace(ctx, "Dim_Subject; DROP TABLE x", []string{"a"}, nil)
	require.Error(t, err)

	err = adapter.Replace(ctx, "Dim_Subject", []string{"a b"}, nil)
	require.Error(t, err)
}

func TestReplace_RowWidthMismatchAborts(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	insert := insertQuery("Dim_Subject", []string{"a", "b"})
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE Dim_Subject")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(insert))
	mock.ExpectRollback()

	err := adapter.Replace(context.Background(), "Dim_Subject", []string{"a", "b"}, [][]any{{int64(1)}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasColumn(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryHasColumn)).
		WithArgs("Dim_Student", "user_id_nk").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(queryHasColumn)).
		WithArgs("Dim_Teacher", "user_id_nk").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ctx := context.Background()

	has, err := adapter.HasColumn(ctx, "Dim_Student", "user_id_nk")
	require.NoError(t, err)
	require.True(t, has)

	has, err = adapter.HasColumn(ctx, "Dim_Teacher", "user_id_nk")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, mock.ExpectationsWereMet())
}
