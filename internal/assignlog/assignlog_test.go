package assignlog

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockWriter(t *testing.T) (*Writer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	w := NewWriter(sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	t.Cleanup(w.Close)
	return w, mock
}

func TestWriteInsertsRecord(t *testing.T) {
	w, mock := newMockWriter(t)

	mock.ExpectExec("INSERT INTO assignment_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w.Write(Record{BookingID: 1, Outcome: OutcomeAssigned})

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// Insert failures buffer the record instead of dropping it; the flush
// retries against a recovered store.
func TestWriteBuffersOnFailureAndRetries(t *testing.T) {
	w, mock := newMockWriter(t)

	mock.ExpectExec("INSERT INTO assignment_logs").
		WillReturnError(errors.New("connection refused"))

	w.Write(Record{BookingID: 2, Outcome: OutcomeEscalated})

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.fallback) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The store comes back; a manual flush drains the buffer.
	mock.ExpectExec("INSERT INTO assignment_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	w.flushFallback()

	w.mu.Lock()
	assert.Empty(t, w.fallback)
	w.mu.Unlock()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sdb := sqlx.NewDb(db, "sqlmock")
	w := NewWriter(sdb, zap.NewNop())
	defer w.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assignment_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := sdb.Beginx()
	require.NoError(t, err)
	rec := Record{BookingID: 3, Outcome: OutcomeAssigned}
	require.NoError(t, w.WriteTx(context.Background(), tx, rec))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryLastDRInterpreterScoping(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewHistory(sqlx.NewDb(db, "sqlmock"))

	// Env-scoped query with no rows means no last DR, not a global fallback.
	envID := int64(3)
	mock.ExpectQuery("SELECT interpreter_emp_code").
		WithArgs(envID).
		WillReturnRows(sqlmock.NewRows([]string{"interpreter_emp_code"}))

	last, err := h.LastDRInterpreter(context.Background(), &envID)
	require.NoError(t, err)
	assert.Empty(t, last)

	// Unscoped lookup reads the global log.
	mock.ExpectQuery("SELECT interpreter_emp_code").
		WillReturnRows(sqlmock.NewRows([]string{"interpreter_emp_code"}).AddRow("00001"))
	last, err = h.LastDRInterpreter(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "00001", last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryLastAssignment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewHistory(sqlx.NewDb(db, "sqlmock"))

	when := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT interpreter_emp_code, MAX").
		WillReturnRows(sqlmock.NewRows([]string{"interpreter_emp_code", "last_assigned"}).
			AddRow("00001", when))

	last, err := h.LastAssignment(context.Background(), []string{"00001", "00002"})
	require.NoError(t, err)
	assert.Equal(t, when, last["00001"])
	_, ok := last["00002"]
	assert.False(t, ok, "never-assigned interpreters stay absent")
}
