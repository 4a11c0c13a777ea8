package policy

import (
	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

const (
	minFairnessWindowDays = 7
	maxFairnessWindowDays = 90
	minMaxGapHours        = 1
	maxMaxGapHours        = 100
)

// Validate checks a global policy against the allowed parameter ranges.
func Validate(p GlobalPolicy) error {
	if !domain.ValidMode(p.Mode) {
		return domain.NewErrorf(domain.CodeBadRequest, "unknown assignment mode %q", p.Mode)
	}
	if p.WFair < 0 || p.WUrgency < 0 || p.WLRS < 0 {
		return domain.NewError(domain.CodeBadRequest, "score weights must be >= 0")
	}
	if p.DRConsecutivePenalty > 0 {
		return domain.NewError(domain.CodeBadRequest, "drConsecutivePenalty must be <= 0")
	}
	if p.FairnessWindowDays < minFairnessWindowDays || p.FairnessWindowDays > maxFairnessWindowDays {
		return domain.NewErrorf(domain.CodeBadRequest, "fairnessWindowDays must be in [%d, %d]",
			minFairnessWindowDays, maxFairnessWindowDays)
	}
	if p.MaxGapHours < minMaxGapHours || p.MaxGapHours > maxMaxGapHours {
		return domain.NewErrorf(domain.CodeBadRequest, "maxGapHours must be in [%d, %d]",
			minMaxGapHours, maxMaxGapHours)
	}
	return nil
}

// ValidateUpdate enforces parameter locks: outside CUSTOM mode the weights
// and the DR penalty are mode-enforced and read-only.
func ValidateUpdate(old, updated GlobalPolicy) error {
	if err := Validate(updated); err != nil {
		return err
	}
	if updated.Mode == domain.ModeCustom {
		return nil
	}
	if updated.WFair != old.WFair || updated.WUrgency != old.WUrgency || updated.WLRS != old.WLRS {
		return domain.NewErrorf(domain.CodePolicyViolation,
			"score weights are locked in %s mode", updated.Mode)
	}
	if updated.DRConsecutivePenalty != old.DRConsecutivePenalty {
		return domain.NewErrorf(domain.CodePolicyViolation,
			"drConsecutivePenalty is locked in %s mode", updated.Mode)
	}
	return nil
}

// ValidateOverlay checks only the fields an overlay defines.
func ValidateOverlay(o EnvOverlay) error {
	if o.Mode != nil && !domain.ValidMode(*o.Mode) {
		return domain.NewErrorf(domain.CodeBadRequest, "unknown assignment mode %q", *o.Mode)
	}
	if (o.WFair != nil && *o.WFair < 0) || (o.WUrgency != nil && *o.WUrgency < 0) || (o.WLRS != nil && *o.WLRS < 0) {
		return domain.NewError(domain.CodeBadRequest, "score weights must be >= 0")
	}
	if o.DRConsecutivePenalty != nil && *o.DRConsecutivePenalty > 0 {
		return domain.NewError(domain.CodeBadRequest, "drConsecutivePenalty must be <= 0")
	}
	if o.FairnessWindowDays != nil &&
		(*o.FairnessWindowDays < minFairnessWindowDays || *o.FairnessWindowDays > maxFairnessWindowDays) {
		return domain.NewErrorf(domain.CodeBadRequest, "fairnessWindowDays must be in [%d, %d]",
			minFairnessWindowDays, maxFairnessWindowDays)
	}
	if o.MaxGapHours != nil && (*o.MaxGapHours < minMaxGapHours || *o.MaxGapHours > maxMaxGapHours) {
		return domain.NewErrorf(domain.CodeBadRequest, "maxGapHours must be in [%d, %d]",
			minMaxGapHours, maxMaxGapHours)
	}
	return nil
}
