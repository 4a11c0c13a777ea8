package booking

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock
}

func bookingRow(status domain.BookingStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "owner_emp_code", "owner_group", "booking_kind", "meeting_type", "dr_type",
		"time_start", "time_end", "meeting_room", "language_code",
		"selected_interpreter_emp_code", "booking_status", "interpreter_emp_code",
		"auto_assign_at", "auto_assign_status", "auto_assign_locked_at", "auto_assign_locked_by",
		"pool_status", "pool_entry_time", "pool_deadline_time", "pool_processing_attempts",
		"created_at", "updated_at",
	}).AddRow(
		int64(1), "10001", "", "INTERPRETER", "General", nil,
		now.Add(time.Hour), now.Add(2*time.Hour), "R-101", nil,
		nil, string(status), nil,
		nil, "pending", nil, nil,
		nil, nil, nil, 0,
		now, now,
	)
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	store, mock := newMockStore(t)

	// cancel -> approve is forbidden by the transition table.
	mock.ExpectQuery("SELECT").WillReturnRows(bookingRow(domain.StatusCancel))

	err := store.UpdateStatus(context.Background(), 1, domain.StatusApprove)
	require.Error(t, err)
	assert.Equal(t, domain.CodePolicyViolation, domain.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCancelClearsPool(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").WillReturnRows(bookingRow(domain.StatusWaiting))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(int64(1), "cancel").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateStatus(context.Background(), 1, domain.StatusCancel))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReturnsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	now := time.Now()
	id, err := store.Create(context.Background(), &domain.Booking{
		OwnerEmpCode: "10001",
		Kind:         domain.KindInterpreter,
		MeetingType:  domain.MeetingTypeGeneral,
		TimeStart:    now.Add(time.Hour),
		TimeEnd:      now.Add(2 * time.Hour),
		MeetingRoom:  "R-101",
		Status:       domain.StatusWaiting,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 11, id)
}
