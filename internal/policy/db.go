package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

// DBOperations handles policy table access
type DBOperations struct {
	db *sqlx.DB
}

// NewDBOperations creates a new DBOperations instance
func NewDBOperations(db *sqlx.DB) *DBOperations {
	return &DBOperations{db: db}
}

// LoadGlobalPolicy reads the single global configuration row.
func (d *DBOperations) LoadGlobalPolicy(ctx context.Context) (GlobalPolicy, error) {
	var p GlobalPolicy
	err := d.db.GetContext(ctx, &p, `
		SELECT mode, w_fair, w_urgency, w_lrs, fairness_window_days,
		       max_gap_hours, dr_consecutive_penalty, auto_assign_enabled
		FROM auto_assignment_config
		WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return GlobalPolicy{}, domain.NewError(domain.CodeNotFound, "global assignment policy missing")
	}
	if err != nil {
		return GlobalPolicy{}, fmt.Errorf("load global policy: %w", err)
	}
	return p, nil
}

// SaveGlobalPolicy persists the global configuration row.
func (d *DBOperations) SaveGlobalPolicy(ctx context.Context, p GlobalPolicy) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE auto_assignment_config
		SET mode = $1, w_fair = $2, w_urgency = $3, w_lrs = $4,
		    fairness_window_days = $5, max_gap_hours = $6,
		    dr_consecutive_penalty = $7, auto_assign_enabled = $8,
		    updated_at = NOW()
		WHERE id = 1
	`, p.Mode, p.WFair, p.WUrgency, p.WLRS,
		p.FairnessWindowDays, p.MaxGapHours, p.DRConsecutivePenalty, p.AutoAssignEnabled)
	return err
}

// LoadEnvOverlay reads the overlay row for one environment, nil when absent.
func (d *DBOperations) LoadEnvOverlay(ctx context.Context, envID int64) (*EnvOverlay, error) {
	var o EnvOverlay
	err := d.db.GetContext(ctx, &o, `
		SELECT environment_id, mode, w_fair, w_urgency, w_lrs, fairness_window_days,
		       max_gap_hours, dr_consecutive_penalty, auto_assign_enabled
		FROM environment_assignment_config
		WHERE environment_id = $1
	`, envID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load env overlay %d: %w", envID, err)
	}
	return &o, nil
}

// UpsertEnvOverlay writes the overlay row for one environment.
func (d *DBOperations) UpsertEnvOverlay(ctx context.Context, o EnvOverlay) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO environment_assignment_config (
			environment_id, mode, w_fair, w_urgency, w_lrs,
			fairness_window_days, max_gap_hours, dr_consecutive_penalty,
			auto_assign_enabled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (environment_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			w_fair = EXCLUDED.w_fair,
			w_urgency = EXCLUDED.w_urgency,
			w_lrs = EXCLUDED.w_lrs,
			fairness_window_days = EXCLUDED.fairness_window_days,
			max_gap_hours = EXCLUDED.max_gap_hours,
			dr_consecutive_penalty = EXCLUDED.dr_consecutive_penalty,
			auto_assign_enabled = EXCLUDED.auto_assign_enabled,
			updated_at = NOW()
	`, o.EnvironmentID, o.Mode, o.WFair, o.WUrgency, o.WLRS,
		o.FairnessWindowDays, o.MaxGapHours, o.DRConsecutivePenalty, o.AutoAssignEnabled)
	return err
}

// LoadMeetingTypePriority reads the global threshold row for one meeting type.
func (d *DBOperations) LoadMeetingTypePriority(ctx context.Context, mt domain.MeetingType) (MeetingTypePriority, error) {
	var p MeetingTypePriority
	err := d.db.GetContext(ctx, &p, `
		SELECT meeting_type, urgent_threshold_days, general_threshold_days
		FROM meeting_type_priorities
		WHERE meeting_type = $1
	`, mt)
	if errors.Is(err, sql.ErrNoRows) {
		return MeetingTypePriority{}, domain.NewErrorf(domain.CodeNotFound,
			"no priority row for meeting type %s", mt)
	}
	if err != nil {
		return MeetingTypePriority{}, fmt.Errorf("load meeting type priority %s: %w", mt, err)
	}
	return p, nil
}

// LoadModeThresholdOverride reads the env-specific threshold cell, nil when absent.
func (d *DBOperations) LoadModeThresholdOverride(ctx context.Context, envID int64, mt domain.MeetingType, mode domain.AssignmentMode) (*ModeThresholdOverride, error) {
	var o ModeThresholdOverride
	err := d.db.GetContext(ctx, &o, `
		SELECT environment_id, meeting_type, mode, urgent_threshold_days, general_threshold_days
		FROM mode_threshold_overrides
		WHERE environment_id = $1 AND meeting_type = $2 AND mode = $3
	`, envID, mt, mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mode threshold override: %w", err)
	}
	return &o, nil
}
