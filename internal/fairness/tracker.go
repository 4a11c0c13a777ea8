package fairness

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Tracker computes per-interpreter assigned hours over a sliding window.
// Workload is attributed by booking createdAt: hours count from the moment
// they were committed, not from when the meeting takes place.
type Tracker struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTracker creates a fairness tracker.
func NewTracker(db *sqlx.DB, logger *zap.Logger) *Tracker {
	return &Tracker{db: db, logger: logger}
}

type hoursRow struct {
	EmpCode string  `db:"interpreter_emp_code"`
	Hours   float64 `db:"hours"`
}

// HoursByInterpreter sums assigned hours per interpreter in scope inside the
// window ending at now. Interpreters with no assignments appear with 0.
func (t *Tracker) HoursByInterpreter(ctx context.Context, scope []string, windowDays int, now time.Time) (map[string]float64, error) {
	hours := make(map[string]float64, len(scope))
	for _, code := range scope {
		hours[code] = 0
	}
	if len(scope) == 0 {
		return hours, nil
	}

	cutoff := now.AddDate(0, 0, -windowDays)
	var rows []hoursRow
	err := t.db.SelectContext(ctx, &rows, `
		SELECT interpreter_emp_code,
		       COALESCE(SUM(EXTRACT(EPOCH FROM (time_end - time_start)) / 3600.0), 0) AS hours
		FROM bookings
		WHERE interpreter_emp_code = ANY($1)
		  AND booking_status <> 'cancel'
		  AND created_at >= $2
		GROUP BY interpreter_emp_code
	`, pq.Array(scope), cutoff)
	if err != nil {
		return nil, fmt.Errorf("fairness hours query: %w", err)
	}

	for _, r := range rows {
		hours[r.EmpCode] = r.Hours
	}
	return hours, nil
}

// Gap loads window hours for the scope and returns the fairness gap.
func (t *Tracker) Gap(ctx context.Context, scope []string, windowDays int, now time.Time) (float64, error) {
	hours, err := t.HoursByInterpreter(ctx, scope, windowDays, now)
	if err != nil {
		return 0, err
	}
	return Gap(hours), nil
}

// Gap returns max − min over the scope. A single interpreter yields 0.
func Gap(hours map[string]float64) float64 {
	if len(hours) <= 1 {
		return 0
	}
	first := true
	var minH, maxH float64
	for _, h := range hours {
		if first {
			minH, maxH = h, h
			first = false
			continue
		}
		if h < minH {
			minH = h
		}
		if h > maxH {
			maxH = h
		}
	}
	return maxH - minH
}

// SimulateAssign returns the projected gap if empCode received an additional
// durationHours of work.
func SimulateAssign(hours map[string]float64, empCode string, durationHours float64) float64 {
	projected := make(map[string]float64, len(hours))
	for k, v := range hours {
		projected[k] = v
	}
	projected[empCode] += durationHours
	return Gap(projected)
}
