package assignlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// History answers recency questions from the assignment log. LRS reads the
// log rather than the bookings table so cancelling a past booking does not
// reset an interpreter's recency.
type History struct {
	db *sqlx.DB
}

// NewHistory creates a history reader.
func NewHistory(db *sqlx.DB) *History {
	return &History{db: db}
}

type lastRow struct {
	EmpCode string    `db:"interpreter_emp_code"`
	Last    time.Time `db:"last_assigned"`
}

// LastAssignment returns the most recent assignment time per interpreter.
// Interpreters never assigned are absent from the result.
func (h *History) LastAssignment(ctx context.Context, empCodes []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(empCodes))
	if len(empCodes) == 0 {
		return result, nil
	}

	var rows []lastRow
	err := h.db.SelectContext(ctx, &rows, `
		SELECT interpreter_emp_code, MAX(created_at) AS last_assigned
		FROM assignment_logs
		WHERE outcome = 'assigned'
		  AND interpreter_emp_code = ANY($1)
		GROUP BY interpreter_emp_code
	`, pq.Array(empCodes))
	if err != nil {
		return nil, fmt.Errorf("last assignment query: %w", err)
	}
	for _, r := range rows {
		result[r.EmpCode] = r.Last
	}
	return result, nil
}

// LastDRInterpreter returns the interpreter who received the most recent DR
// assignment in envID's scope. The global log is consulted only when no
// environment resolves for the booking.
func (h *History) LastDRInterpreter(ctx context.Context, envID *int64) (string, error) {
	if envID != nil {
		var empCode string
		err := h.db.GetContext(ctx, &empCode, `
			SELECT interpreter_emp_code
			FROM assignment_logs
			WHERE outcome = 'assigned'
			  AND meeting_type = 'DR'
			  AND interpreter_emp_code IS NOT NULL
			  AND environment_id = $1
			ORDER BY created_at DESC
			LIMIT 1
		`, *envID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("last DR query (env): %w", err)
		}
		return empCode, nil
	}

	var empCode string
	err := h.db.GetContext(ctx, &empCode, `
		SELECT interpreter_emp_code
		FROM assignment_logs
		WHERE outcome = 'assigned'
		  AND meeting_type = 'DR'
		  AND interpreter_emp_code IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last DR query: %w", err)
	}
	return empCode, nil
}
