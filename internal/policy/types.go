package policy

import (
	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

// GlobalPolicy is the process-wide tunable set for the assignment engine.
type GlobalPolicy struct {
	Mode                 domain.AssignmentMode `db:"mode"`
	WFair                float64               `db:"w_fair"`
	WUrgency             float64               `db:"w_urgency"`
	WLRS                 float64               `db:"w_lrs"`
	FairnessWindowDays   int                   `db:"fairness_window_days"`
	MaxGapHours          float64               `db:"max_gap_hours"`
	DRConsecutivePenalty float64               `db:"dr_consecutive_penalty"`
	AutoAssignEnabled    bool                  `db:"auto_assign_enabled"`
}

// EnvOverlay overrides any subset of the global policy for one environment.
// Nil fields inherit the global value.
type EnvOverlay struct {
	EnvironmentID        int64                  `db:"environment_id"`
	Mode                 *domain.AssignmentMode `db:"mode"`
	WFair                *float64               `db:"w_fair"`
	WUrgency             *float64               `db:"w_urgency"`
	WLRS                 *float64               `db:"w_lrs"`
	FairnessWindowDays   *int                   `db:"fairness_window_days"`
	MaxGapHours          *float64               `db:"max_gap_hours"`
	DRConsecutivePenalty *float64               `db:"dr_consecutive_penalty"`
	AutoAssignEnabled    *bool                  `db:"auto_assign_enabled"`
}

// MeetingTypePriority is the per-type threshold row.
type MeetingTypePriority struct {
	MeetingType          domain.MeetingType `db:"meeting_type"`
	UrgentThresholdDays  int                `db:"urgent_threshold_days"`
	GeneralThresholdDays int                `db:"general_threshold_days"`
}

// ModeThresholdOverride further adjusts thresholds for one (env, type, mode) cell.
type ModeThresholdOverride struct {
	EnvironmentID        int64                 `db:"environment_id"`
	MeetingType          domain.MeetingType    `db:"meeting_type"`
	Mode                 domain.AssignmentMode `db:"mode"`
	UrgentThresholdDays  int                   `db:"urgent_threshold_days"`
	GeneralThresholdDays int                   `db:"general_threshold_days"`
}

// EffectivePolicy is the merged view every engine component consumes.
type EffectivePolicy struct {
	Mode                 domain.AssignmentMode
	WFair                float64
	WUrgency             float64
	WLRS                 float64
	FairnessWindowDays   int
	MaxGapHours          float64
	DRConsecutivePenalty float64
	AutoAssignEnabled    bool
	EnvironmentID        *int64
}

// Thresholds is the resolved (urgent, general) pair for one booking.
type Thresholds struct {
	UrgentThresholdDays  int
	GeneralThresholdDays int
}

// merge lays the overlay over the global policy; overlay wins for any
// field it defines.
func merge(global GlobalPolicy, overlay *EnvOverlay) EffectivePolicy {
	eff := EffectivePolicy{
		Mode:                 global.Mode,
		WFair:                global.WFair,
		WUrgency:             global.WUrgency,
		WLRS:                 global.WLRS,
		FairnessWindowDays:   global.FairnessWindowDays,
		MaxGapHours:          global.MaxGapHours,
		DRConsecutivePenalty: global.DRConsecutivePenalty,
		AutoAssignEnabled:    global.AutoAssignEnabled,
	}
	if overlay == nil {
		return eff
	}
	eff.EnvironmentID = &overlay.EnvironmentID
	if overlay.Mode != nil {
		eff.Mode = *overlay.Mode
	}
	if overlay.WFair != nil {
		eff.WFair = *overlay.WFair
	}
	if overlay.WUrgency != nil {
		eff.WUrgency = *overlay.WUrgency
	}
	if overlay.WLRS != nil {
		eff.WLRS = *overlay.WLRS
	}
	if overlay.FairnessWindowDays != nil {
		eff.FairnessWindowDays = *overlay.FairnessWindowDays
	}
	if overlay.MaxGapHours != nil {
		eff.MaxGapHours = *overlay.MaxGapHours
	}
	if overlay.DRConsecutivePenalty != nil {
		eff.DRConsecutivePenalty = *overlay.DRConsecutivePenalty
	}
	if overlay.AutoAssignEnabled != nil {
		eff.AutoAssignEnabled = *overlay.AutoAssignEnabled
	}
	return eff
}
