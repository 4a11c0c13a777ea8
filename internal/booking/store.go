package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

const bookingColumns = `
	id, owner_emp_code, owner_group, booking_kind, meeting_type, dr_type,
	time_start, time_end, meeting_room, language_code,
	selected_interpreter_emp_code, booking_status, interpreter_emp_code,
	auto_assign_at, auto_assign_status, auto_assign_locked_at, auto_assign_locked_by,
	pool_status, pool_entry_time, pool_deadline_time, pool_processing_attempts,
	created_at, updated_at`

// Store handles booking persistence.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore creates a booking store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create inserts a new booking and returns its id.
func (s *Store) Create(ctx context.Context, b *domain.Booking) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bookings (
			owner_emp_code, owner_group, booking_kind, meeting_type, dr_type,
			time_start, time_end, meeting_room, language_code,
			selected_interpreter_emp_code, booking_status,
			auto_assign_at, auto_assign_status,
			pool_status, pool_entry_time, pool_deadline_time,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
		RETURNING id
	`, b.OwnerEmpCode, b.OwnerGroup, b.Kind, b.MeetingType, b.DRType,
		b.TimeStart, b.TimeEnd, b.MeetingRoom, b.LanguageCode,
		b.SelectedInterpreterEmpCode, b.Status,
		b.AutoAssignAt, b.AutoAssignStatus,
		b.PoolStatus, b.PoolEntryTime, b.PoolDeadlineTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert booking: %w", err)
	}
	return id, nil
}

// Get loads a booking by id.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	err := s.db.GetContext(ctx, &b,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewErrorf(domain.CodeNotFound, "booking %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	return &b, nil
}

// GetForUpdate reloads a booking inside tx with a row lock.
func (s *Store) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Booking, error) {
	var b domain.Booking
	err := tx.GetContext(ctx, &b,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewErrorf(domain.CodeNotFound, "booking %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock booking %d: %w", id, err)
	}
	return &b, nil
}

// CommitAssignment applies the assignment inside tx: interpreter set, status
// approve, auto-assign done, pool fields cleared.
func (s *Store) CommitAssignment(ctx context.Context, tx *sqlx.Tx, bookingID int64, empCode string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET interpreter_emp_code = $2,
		    booking_status = 'approve',
		    auto_assign_status = 'done',
		    auto_assign_locked_at = NULL,
		    auto_assign_locked_by = NULL,
		    pool_status = NULL,
		    pool_entry_time = NULL,
		    pool_deadline_time = NULL,
		    pool_processing_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`, bookingID, empCode)
	if err != nil {
		return fmt.Errorf("commit assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return domain.NewErrorf(domain.CodeNotFound, "booking %d vanished during commit", bookingID)
	}
	return nil
}

// SetAutoAssignStatus updates only the scheduling status inside tx.
func (s *Store) SetAutoAssignStatus(ctx context.Context, tx *sqlx.Tx, bookingID int64, status domain.AutoAssignStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bookings SET auto_assign_status = $2, updated_at = NOW() WHERE id = $1
	`, bookingID, status)
	return err
}

// MarkAutoAssignLocked stamps the worker owning an in-flight assignment.
func (s *Store) MarkAutoAssignLocked(ctx context.Context, tx *sqlx.Tx, bookingID int64, lockedBy string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET auto_assign_status = 'locked', auto_assign_locked_at = $3,
		    auto_assign_locked_by = $2, updated_at = NOW()
		WHERE id = $1
	`, bookingID, lockedBy, at)
	return err
}

// UpdateStatus moves the booking between statuses after transition
// validation. Cancelling clears pool fields.
func (s *Store) UpdateStatus(ctx context.Context, id int64, to domain.BookingStatus) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := domain.ValidateTransition(b.Status, to); err != nil {
		return err
	}

	query := `UPDATE bookings SET booking_status = $2, updated_at = NOW() WHERE id = $1`
	if to == domain.StatusCancel {
		query = `
			UPDATE bookings
			SET booking_status = $2,
			    pool_status = NULL, pool_entry_time = NULL,
			    pool_deadline_time = NULL, pool_processing_attempts = 0,
			    updated_at = NOW()
			WHERE id = $1`
	}
	if _, err := s.db.ExecContext(ctx, query, id, to); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	s.logger.Info("Booking status updated",
		zap.Int64("booking_id", id),
		zap.String("from", string(b.Status)),
		zap.String("to", string(to)),
	)
	return nil
}

// Approve assigns empCode outside the auto-assignment path (admin action).
// Runs inside tx so callers can hold the interpreter lock across the
// conflict check and the write.
func (s *Store) Approve(ctx context.Context, tx *sqlx.Tx, bookingID int64, empCode string) error {
	b, err := s.GetForUpdate(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if err := domain.ValidateTransition(b.Status, domain.StatusApprove); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE bookings
		SET interpreter_emp_code = $2,
		    booking_status = 'approve',
		    auto_assign_status = CASE WHEN auto_assign_status = 'pending' THEN 'skipped' ELSE auto_assign_status END,
		    pool_status = NULL, pool_entry_time = NULL,
		    pool_deadline_time = NULL, pool_processing_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`, bookingID, empCode)
	if err != nil {
		return fmt.Errorf("approve booking: %w", err)
	}
	return nil
}

// MarkEscalatedTx records an escalated decision inside tx: the booking stays
// waiting, the attempt counts, and the pool entry goes back to waiting for
// the next pass or is parked as failed past the attempt bound.
func (s *Store) MarkEscalatedTx(ctx context.Context, tx *sqlx.Tx, bookingID int64, hardFail bool) error {
	autoStatus := domain.AutoAssignPending
	poolStatus := domain.PoolWaiting
	if hardFail {
		autoStatus = domain.AutoAssignFailed
		poolStatus = domain.PoolFailed
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET auto_assign_status = $2,
		    pool_status = CASE WHEN pool_status IS NOT NULL THEN $3 ELSE pool_status END,
		    pool_processing_attempts = pool_processing_attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, bookingID, autoStatus, poolStatus)
	return err
}

// ClearPoolFieldsTx nulls the pool tracking columns inside tx.
func (s *Store) ClearPoolFieldsTx(ctx context.Context, tx *sqlx.Tx, bookingID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET pool_status = NULL, pool_entry_time = NULL,
		    pool_deadline_time = NULL, pool_processing_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`, bookingID)
	return err
}
