package conflict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals (aEnd == bStart) do not conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Checker detects time-overlap conflicts against non-cancelled bookings.
type Checker struct {
	db *sqlx.DB
}

// NewChecker creates a conflict checker.
func NewChecker(db *sqlx.DB) *Checker {
	return &Checker{db: db}
}

// querier lets the same checks run on the pool or inside a transaction.
type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// FindInterpreterConflict returns the id of a non-cancelled booking assigned
// to empCode that overlaps [start, end), excluding excludeBookingID.
func (c *Checker) FindInterpreterConflict(ctx context.Context, empCode string, start, end time.Time, excludeBookingID int64) (int64, bool, error) {
	return findInterpreterConflict(ctx, c.db, empCode, start, end, excludeBookingID)
}

// FindInterpreterConflictTx is FindInterpreterConflict inside a transaction,
// used for the commit-time re-check under the interpreter lock.
func (c *Checker) FindInterpreterConflictTx(ctx context.Context, tx *sqlx.Tx, empCode string, start, end time.Time, excludeBookingID int64) (int64, bool, error) {
	return findInterpreterConflict(ctx, tx, empCode, start, end, excludeBookingID)
}

func findInterpreterConflict(ctx context.Context, q querier, empCode string, start, end time.Time, excludeBookingID int64) (int64, bool, error) {
	var id int64
	err := q.GetContext(ctx, &id, `
		SELECT id FROM bookings
		WHERE interpreter_emp_code = $1
		  AND booking_status <> 'cancel'
		  AND time_start < $2
		  AND time_end > $3
		  AND id <> $4
		LIMIT 1
	`, empCode, end, start, excludeBookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("interpreter conflict query: %w", err)
	}
	return id, true, nil
}

// HasInterpreterConflict reports whether empCode is booked anywhere in [start, end).
func (c *Checker) HasInterpreterConflict(ctx context.Context, empCode string, start, end time.Time) (bool, error) {
	_, found, err := c.FindInterpreterConflict(ctx, empCode, start, end, 0)
	return found, err
}

// HasRoomConflict reports whether room is occupied anywhere in [start, end).
func (c *Checker) HasRoomConflict(ctx context.Context, room string, start, end time.Time) (bool, error) {
	var id int64
	err := c.db.GetContext(ctx, &id, `
		SELECT id FROM bookings
		WHERE meeting_room = $1
		  AND booking_status <> 'cancel'
		  AND time_start < $2
		  AND time_end > $3
		LIMIT 1
	`, room, end, start)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("room conflict query: %w", err)
	}
	return true, nil
}

// ChairmanAvailability is the result of a chairman double-booking probe.
type ChairmanAvailability struct {
	Available            bool
	ConflictingBookingID *int64
}

// ChairmanAvailable checks whether the chairman identified by email already
// owns a non-cancelled booking overlapping [start, end).
func (c *Checker) ChairmanAvailable(ctx context.Context, email string, start, end time.Time) (ChairmanAvailability, error) {
	var id int64
	err := c.db.GetContext(ctx, &id, `
		SELECT b.id FROM bookings b
		JOIN employees e ON e.emp_code = b.owner_emp_code
		WHERE e.email = $1
		  AND b.booking_status <> 'cancel'
		  AND b.time_start < $2
		  AND b.time_end > $3
		LIMIT 1
	`, email, end, start)
	if errors.Is(err, sql.ErrNoRows) {
		return ChairmanAvailability{Available: true}, nil
	}
	if err != nil {
		return ChairmanAvailability{}, fmt.Errorf("chairman conflict query: %w", err)
	}
	return ChairmanAvailability{Available: false, ConflictingBookingID: &id}, nil
}
