package fairness

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

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestHoursByInterpreterFillsZeros(t *testing.T) {
	db, mock := newMockDB(t)
	tracker := NewTracker(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{"interpreter_emp_code", "hours"}).
		AddRow("00001", 12.0)
	mock.ExpectQuery("SELECT interpreter_emp_code").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hours, err := tracker.HoursByInterpreter(context.Background(), []string{"00001", "00002"}, 30, now)
	require.NoError(t, err)

	assert.Equal(t, 12.0, hours["00001"])
	assert.Equal(t, 0.0, hours["00002"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoursByInterpreterEmptyScope(t *testing.T) {
	db, _ := newMockDB(t)
	tracker := NewTracker(db, zap.NewNop())

	hours, err := tracker.HoursByInterpreter(context.Background(), nil, 30, time.Now())
	require.NoError(t, err)
	assert.Empty(t, hours)
}

func TestGap(t *testing.T) {
	assert.Equal(t, 0.0, Gap(nil))
	assert.Equal(t, 0.0, Gap(map[string]float64{"only": 40}))
	assert.Equal(t, 6.0, Gap(map[string]float64{"a": 12, "b": 6}))
	assert.Equal(t, 12.0, Gap(map[string]float64{"a": 12, "b": 6, "c": 0}))
}

func TestSimulateAssign(t *testing.T) {
	hours := map[string]float64{"a": 12, "b": 6}

	// Loading the lighter interpreter narrows the gap.
	assert.Equal(t, 3.0, SimulateAssign(hours, "b", 3))
	// Loading the heavier one widens it.
	assert.Equal(t, 9.0, SimulateAssign(hours, "a", 3))
	// The input map stays untouched.
	assert.Equal(t, 6.0, hours["b"])
}

// Adding a non-cancelled booking never decreases any interpreter's hours.
func TestHoursMonotonicUnderAssignment(t *testing.T) {
	before := map[string]float64{"a": 12, "b": 6}
	after := map[string]float64{}
	for k, v := range before {
		after[k] = v
	}
	after["b"] += 2.5

	for code := range before {
		assert.GreaterOrEqual(t, after[code], before[code])
	}
}
