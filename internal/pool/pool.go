package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/metrics"
)

// DeadlineFor computes the pool deadline for a booking:
// timeStart − max(1, urgentThresholdDays) days.
func DeadlineFor(timeStart time.Time, urgentThresholdDays int) time.Time {
	days := urgentThresholdDays
	if days < 1 {
		days = 1
	}
	return timeStart.AddDate(0, 0, -days)
}

// Entry is the pool's view of a deferred booking.
type Entry struct {
	BookingID        int64      `db:"id"`
	PoolStatus       string     `db:"pool_status"`
	PoolEntryTime    time.Time  `db:"pool_entry_time"`
	PoolDeadlineTime time.Time  `db:"pool_deadline_time"`
	Attempts         int        `db:"pool_processing_attempts"`
	AutoAssignAt     *time.Time `db:"auto_assign_at"`
	TimeStart        time.Time  `db:"time_start"`
}

// Pool defers bookings until their assignment window opens. Pool state lives
// on the booking row; workers compete through MarkProcessing rather than
// shared memory.
type Pool struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New creates a pool over the bookings table.
func New(db *sqlx.DB, logger *zap.Logger) *Pool {
	return &Pool{db: db, logger: logger}
}

// Enqueue places a booking in the pool with its deadline.
func (p *Pool) Enqueue(ctx context.Context, bookingID int64, deadline time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET pool_status = 'waiting',
		    pool_entry_time = NOW(),
		    pool_deadline_time = $2,
		    pool_processing_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`, bookingID, deadline)
	if err != nil {
		return fmt.Errorf("pool enqueue: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("pool enqueue: booking %d not found", bookingID)
	}
	p.logger.Info("Booking pooled",
		zap.Int64("booking_id", bookingID),
		zap.Time("deadline", deadline),
	)
	return nil
}

// Ready returns dispatchable entries: pooled interpreter bookings still
// waiting for assignment whose window has opened, within the horizon.
func (p *Pool) Ready(ctx context.Context, now time.Time, horizon time.Duration) ([]Entry, error) {
	var entries []Entry
	err := p.db.SelectContext(ctx, &entries, `
		SELECT id, pool_status, pool_entry_time, pool_deadline_time,
		       pool_processing_attempts, auto_assign_at, time_start
		FROM bookings
		WHERE pool_status IN ('waiting', 'ready')
		  AND booking_status = 'waiting'
		  AND interpreter_emp_code IS NULL
		  AND booking_kind = 'INTERPRETER'
		  AND auto_assign_at IS NOT NULL
		  AND (auto_assign_at <= $1 OR pool_deadline_time <= $1)
		  AND time_start <= $2
		ORDER BY pool_deadline_time ASC, id ASC
	`, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("pool ready query: %w", err)
	}
	return entries, nil
}

// MarkProcessing atomically claims an entry. Returns true when this caller
// won the claim; false when another worker holds it or the entry left the
// pool.
func (p *Pool) MarkProcessing(ctx context.Context, bookingID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET pool_status = 'processing', updated_at = NOW()
		WHERE id = $1 AND pool_status IN ('waiting', 'ready')
	`, bookingID)
	if err != nil {
		return false, fmt.Errorf("pool mark processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Remove clears the pool fields, returning the booking to untracked state.
func (p *Pool) Remove(ctx context.Context, bookingID int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET pool_status = NULL, pool_entry_time = NULL,
		    pool_deadline_time = NULL, pool_processing_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`, bookingID)
	if err != nil {
		return fmt.Errorf("pool remove: %w", err)
	}
	return nil
}

// FailAttempt counts a failed dispatch. Entries under maxAttempts go back to
// waiting for the next pass; past the bound they are parked as failed.
func (p *Pool) FailAttempt(ctx context.Context, bookingID int64, maxAttempts int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET pool_processing_attempts = pool_processing_attempts + 1,
		    pool_status = CASE
		        WHEN pool_processing_attempts + 1 >= $2 THEN 'failed'
		        ELSE 'waiting'
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND pool_status = 'processing'
	`, bookingID, maxAttempts)
	if err != nil {
		return fmt.Errorf("pool fail attempt: %w", err)
	}
	return nil
}

// RecoverStuck resets entries stuck in processing longer than olderThan.
func (p *Pool) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET pool_status = 'waiting', updated_at = NOW()
		WHERE pool_status = 'processing'
		  AND updated_at < $1
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pool recover stuck: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		p.logger.Warn("Recovered stuck pool entries", zap.Int64("count", n))
	}
	return n, nil
}

// ClearTerminal untracks entries whose booking reached a terminal status.
func (p *Pool) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET pool_status = NULL, pool_entry_time = NULL,
		    pool_deadline_time = NULL, pool_processing_attempts = 0,
		    updated_at = NOW()
		WHERE pool_status IS NOT NULL
		  AND booking_status IN ('approve', 'cancel', 'complet')
	`)
	if err != nil {
		return 0, fmt.Errorf("pool clear terminal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats reports pool sizes by status and refreshes the pool gauge.
func (p *Pool) Stats(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"pool_status"`
		Count  int    `db:"count"`
	}
	err := p.db.SelectContext(ctx, &rows, `
		SELECT pool_status, COUNT(*) AS count
		FROM bookings
		WHERE pool_status IS NOT NULL
		GROUP BY pool_status
	`)
	if err != nil {
		return nil, fmt.Errorf("pool stats query: %w", err)
	}

	stats := make(map[string]int, len(rows))
	total := 0
	for _, r := range rows {
		stats[r.Status] = r.Count
		total += r.Count
	}
	metrics.PoolSize.Set(float64(total))
	return stats, nil
}
