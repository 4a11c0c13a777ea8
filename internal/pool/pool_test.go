package pool

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock
}

func TestDeadlineFor(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, start.AddDate(0, 0, -7), DeadlineFor(start, 7))
	// Threshold floors at one day.
	assert.Equal(t, start.AddDate(0, 0, -1), DeadlineFor(start, 0))
	assert.Equal(t, start.AddDate(0, 0, -1), DeadlineFor(start, -3))
}

func TestMarkProcessingWinsOnce(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectExec("UPDATE bookings").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := p.MarkProcessing(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, won)

	// A second claimant matches no rows and loses.
	mock.ExpectExec("UPDATE bookings").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = p.MarkProcessing(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueMissingBooking(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectExec("UPDATE bookings").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := p.Enqueue(context.Background(), 99, time.Now())
	assert.Error(t, err)
}

func TestReadyQuery(t *testing.T) {
	p, mock := newMockPool(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "pool_status", "pool_entry_time", "pool_deadline_time",
		"pool_processing_attempts", "auto_assign_at", "time_start",
	}).AddRow(int64(7), "waiting", now.Add(-time.Hour), now.Add(-time.Minute), 0, now.Add(-time.Minute), now.AddDate(0, 0, 1))

	mock.ExpectQuery("SELECT id, pool_status").
		WithArgs(now, now.Add(90*24*time.Hour)).
		WillReturnRows(rows)

	entries, err := p.Ready(context.Background(), now, 90*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 7, entries[0].BookingID)
	assert.Equal(t, "waiting", entries[0].PoolStatus)
}

func TestRemoveAndFailAttempt(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectExec("UPDATE bookings").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, p.Remove(context.Background(), 5))

	mock.ExpectExec("UPDATE bookings").
		WithArgs(int64(5), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, p.FailAttempt(context.Background(), 5, 3))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectQuery("SELECT pool_status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"pool_status", "count"}).
			AddRow("waiting", 3).
			AddRow("processing", 1))

	stats, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats["waiting"])
	assert.Equal(t, 1, stats["processing"])
}
