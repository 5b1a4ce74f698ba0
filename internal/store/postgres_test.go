package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kenton/apptrack/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at FROM records WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO records`).
		WithArgs("rec-1", "Acme Corp", "Backend Engineer", "interview",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateRecord(context.Background(), sampleRecord("rec-1"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE records SET`).
		WithArgs("Acme Corp", "Backend Engineer", "interview",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rec := sampleRecord("ghost")
	rec.Status = model.StatusInterview
	err := s.UpdateRecord(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found: ghost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"id", "company", "position", "status", "applied_date", "detail", "provenance", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT id, company, position, status, applied_date, detail, provenance, created_at, updated_at FROM records WHERE true`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(cols))

	records, err := s.ListRecords(context.Background(), RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceStatusHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	entries := []model.StatusHistoryEntry{
		{Status: model.StatusInterview, Date: day(5), SourceID: "mail-2", Confidence: 0.8},
		{Status: model.StatusApplied, Date: day(1), SourceID: "mail-1", Confidence: 0.9},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM status_history`).
		WithArgs("rec-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO status_history`).
		WithArgs("rec-1", 0, "interview", day(5), "mail-2", 0.8).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO status_history`).
		WithArgs("rec-1", 1, "applied", day(1), "mail-1", 0.9).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ReplaceStatusHistory(context.Background(), "rec-1", entries)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceStatusHistory_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM status_history`).
		WithArgs("rec-1").
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	err := s.ReplaceStatusHistory(context.Background(), "rec-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessed_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("mail-1", "rec-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.MarkProcessed(context.Background(), "mail-1", "rec-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsProcessed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT 1 FROM processed_messages`).
		WithArgs("mail-1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	done, err := s.IsProcessed(context.Background(), "mail-1")
	require.NoError(t, err)
	assert.True(t, done)

	mock.ExpectQuery(`SELECT 1 FROM processed_messages`).
		WithArgs("mail-2").
		WillReturnError(pgx.ErrNoRows)

	done, err = s.IsProcessed(context.Background(), "mail-2")
	require.NoError(t, err)
	assert.False(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}
