package environment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

// CenterFromDeptPath extracts the center from an owner's department path.
// The path is backslash separated and the leading segment is the center.
func CenterFromDeptPath(deptPath string) string {
	if deptPath == "" {
		return ""
	}
	segments := strings.Split(deptPath, `\`)
	return strings.TrimSpace(segments[0])
}

// Resolver maps a booking to its environment scope: the most recent forward
// target wins; otherwise the owner's center is looked up; a booking with
// neither degrades to the unscoped (all active interpreters) candidate pool.
type Resolver struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewResolver creates an environment resolver.
func NewResolver(db *sqlx.DB, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// Resolve returns the environment id for a booking, nil when unscoped.
func (r *Resolver) Resolve(ctx context.Context, booking *domain.Booking) (*int64, error) {
	var envID int64
	err := r.db.GetContext(ctx, &envID, `
		SELECT environment_id
		FROM booking_forward_targets
		WHERE booking_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, booking.ID)
	if err == nil {
		return &envID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("forward target query: %w", err)
	}

	var deptPath string
	err = r.db.GetContext(ctx, &deptPath, `
		SELECT dept_path FROM employees WHERE emp_code = $1
	`, booking.OwnerEmpCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("owner dept path query: %w", err)
	}

	center := CenterFromDeptPath(deptPath)
	if center == "" {
		return nil, nil
	}

	err = r.db.GetContext(ctx, &envID, `
		SELECT environment_id FROM environment_centers WHERE center = $1
	`, center)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug("Center has no environment mapping, scope degrades to all interpreters",
			zap.String("center", center),
			zap.Int64("booking_id", booking.ID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("center environment query: %w", err)
	}
	return &envID, nil
}

// RecordForward appends forward targets for a booking.
func (r *Resolver) RecordForward(ctx context.Context, bookingID int64, environmentIDs []int64, note string) error {
	for _, envID := range environmentIDs {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO booking_forward_targets (booking_id, environment_id, note, created_at)
			VALUES ($1, $2, $3, NOW())
		`, bookingID, envID, note); err != nil {
			return fmt.Errorf("record forward target: %w", err)
		}
	}
	return nil
}

// EnvironmentExists reports whether envID names an active environment.
func (r *Resolver) EnvironmentExists(ctx context.Context, envID int64) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM environments WHERE id = $1 AND is_active = TRUE
	`, envID); err != nil {
		return false, fmt.Errorf("environment lookup: %w", err)
	}
	return count > 0, nil
}
