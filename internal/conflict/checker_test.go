package conflict

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapsBoundaries(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		aStart  time.Time
		aEnd    time.Time
		bStart  time.Time
		bEnd    time.Time
		overlap bool
	}{
		{"disjoint before", base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
		{"touching end-to-start is not a conflict", base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"partial overlap", base, base.Add(2 * time.Hour), base.Add(time.Hour), base.Add(3 * time.Hour), true},
		{"contained", base, base.Add(3 * time.Hour), base.Add(time.Hour), base.Add(2 * time.Hour), true},
		{"identical", base, base.Add(time.Hour), base, base.Add(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlap, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			// The predicate is symmetric.
			assert.Equal(t, tt.overlap, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func newMockChecker(t *testing.T) (*Checker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewChecker(sqlx.NewDb(db, "sqlmock")), mock
}

func TestFindInterpreterConflict(t *testing.T) {
	checker, mock := newMockChecker(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery("SELECT id FROM bookings").
		WithArgs("00001", end, start, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, found, err := checker.FindInterpreterConflict(context.Background(), "00001", start, end, 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 42, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindInterpreterConflictNone(t *testing.T) {
	checker, mock := newMockChecker(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := checker.FindInterpreterConflict(context.Background(), "00001", start, start.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHasRoomConflict(t *testing.T) {
	checker, mock := newMockChecker(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	busy, err := checker.HasRoomConflict(context.Background(), "R-101", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, busy)
}

func TestChairmanAvailable(t *testing.T) {
	checker, mock := newMockChecker(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT b.id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	avail, err := checker.ChairmanAvailable(context.Background(), "chair@example.com", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.Nil(t, avail.ConflictingBookingID)
}
