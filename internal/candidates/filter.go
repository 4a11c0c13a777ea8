package candidates

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
	"github.com/bookinghub/interpreter-assignment/internal/drpolicy"
	"github.com/bookinghub/interpreter-assignment/internal/fairness"
	"github.com/bookinghub/interpreter-assignment/internal/policy"
)

// Escalation reasons surfaced when the pipeline empties out.
const (
	ReasonNoCandidates      = "NO_CANDIDATES"
	ReasonAllConflict       = "ALL_CONFLICT"
	ReasonAllDRBlocked      = "ALL_DR_BLOCKED"
	ReasonFairnessGuardrail = "FAIRNESS_GUARDRAIL"
)

// Directory lists interpreter profiles for a scope.
type Directory interface {
	ActiveInterpreters(ctx context.Context) ([]domain.InterpreterProfile, error)
	ActiveInterpretersInEnvironment(ctx context.Context, envID int64) ([]domain.InterpreterProfile, error)
}

// ConflictSource probes interpreter time overlaps.
type ConflictSource interface {
	FindInterpreterConflict(ctx context.Context, empCode string, start, end time.Time, excludeBookingID int64) (int64, bool, error)
}

// FairnessSource supplies window hours for the guardrail and scoring.
type FairnessSource interface {
	HoursByInterpreter(ctx context.Context, scope []string, windowDays int, now time.Time) (map[string]float64, error)
}

// DRHistory supplies the last DR assignee for the consecutive rule.
type DRHistory interface {
	LastDRInterpreter(ctx context.Context, envID *int64) (string, error)
}

// Candidate is one eligible interpreter with its filter-stage annotations.
type Candidate struct {
	Profile      domain.InterpreterProfile
	ProjectedGap float64
	DRDecision   drpolicy.Decision
}

// Result is the filtered, annotated candidate set plus the data the
// selector reuses for scoring.
type Result struct {
	Candidates []Candidate
	// Hours covers every interpreter that reached the guardrail step.
	Hours map[string]float64
	// Dropped maps emp codes to the stage that removed them.
	Dropped map[string]string
	// GuardrailRelaxed is set when every candidate exceeded maxGapHours and
	// the guardrail was lifted for this decision.
	GuardrailRelaxed bool
	// EscalationReason is non-empty when Candidates is empty.
	EscalationReason string
	LastDR           string
}

// Filter produces the ordered candidate list for a booking.
type Filter struct {
	directory Directory
	conflicts ConflictSource
	fairness  FairnessSource
	drHistory DRHistory
	logger    *zap.Logger

	nowFn func() time.Time
}

// NewFilter creates a candidate filter.
func NewFilter(dir Directory, conflicts ConflictSource, fair FairnessSource, dr DRHistory, logger *zap.Logger) *Filter {
	return &Filter{
		directory: dir,
		conflicts: conflicts,
		fairness:  fair,
		drHistory: dr,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Options tweak one Build invocation.
type Options struct {
	// Exclude removes specific interpreters, used for the commit-time
	// retry with the next-best candidate.
	Exclude []string
	// AdminOverride marks an admin-flagged emergency for the DR rule.
	AdminOverride bool
}

// Build runs the eligibility pipeline for one booking.
func (f *Filter) Build(ctx context.Context, b *domain.Booking, envID *int64, pol policy.EffectivePolicy, opts Options) (Result, error) {
	res := Result{Dropped: make(map[string]string)}

	// Steps 1-3: active interpreters restricted to the environment scope.
	var profiles []domain.InterpreterProfile
	var err error
	if envID != nil {
		profiles, err = f.directory.ActiveInterpretersInEnvironment(ctx, *envID)
	} else {
		profiles, err = f.directory.ActiveInterpreters(ctx)
	}
	if err != nil {
		return res, err
	}

	excluded := lo.SliceToMap(opts.Exclude, func(code string) (string, bool) { return code, true })
	profiles = lo.Filter(profiles, func(p domain.InterpreterProfile, _ int) bool {
		if excluded[p.EmpCode] {
			res.Dropped[p.EmpCode] = "excluded"
			return false
		}
		return true
	})

	// Step 4: language match.
	if b.LanguageCode != nil && *b.LanguageCode != "" {
		profiles = lo.Filter(profiles, func(p domain.InterpreterProfile, _ int) bool {
			if p.OffersLanguage(*b.LanguageCode) {
				return true
			}
			res.Dropped[p.EmpCode] = "language"
			return false
		})
	}
	if len(profiles) == 0 {
		res.EscalationReason = ReasonNoCandidates
		return res, nil
	}

	// Step 5: interpreter time conflicts.
	hadBeforeConflict := len(profiles)
	var free []domain.InterpreterProfile
	for _, p := range profiles {
		_, busy, err := f.conflicts.FindInterpreterConflict(ctx, p.EmpCode, b.TimeStart, b.TimeEnd, b.ID)
		if err != nil {
			return res, err
		}
		if busy {
			res.Dropped[p.EmpCode] = "conflict"
			continue
		}
		free = append(free, p)
	}
	if len(free) == 0 {
		if hadBeforeConflict > 0 {
			res.EscalationReason = ReasonAllConflict
		} else {
			res.EscalationReason = ReasonNoCandidates
		}
		return res, nil
	}

	// Step 6: fairness guardrail, relaxed when it would empty the list.
	now := f.nowFn()
	scope := lo.Map(free, func(p domain.InterpreterProfile, _ int) string { return p.EmpCode })
	hours, err := f.fairness.HoursByInterpreter(ctx, scope, pol.FairnessWindowDays, now)
	if err != nil {
		return res, err
	}
	res.Hours = hours

	duration := b.DurationHours()
	projections := make(map[string]float64, len(free))
	var withinGap []domain.InterpreterProfile
	for _, p := range free {
		projected := fairness.SimulateAssign(hours, p.EmpCode, duration)
		projections[p.EmpCode] = projected
		if projected <= pol.MaxGapHours {
			withinGap = append(withinGap, p)
		}
	}
	if len(withinGap) == 0 {
		res.GuardrailRelaxed = true
		withinGap = free
		f.logger.Warn("Fairness guardrail relaxed, every candidate exceeds maxGapHours",
			zap.Int64("booking_id", b.ID),
			zap.Float64("max_gap_hours", pol.MaxGapHours),
		)
	} else {
		for _, p := range free {
			if projections[p.EmpCode] > pol.MaxGapHours {
				res.Dropped[p.EmpCode] = "fairness-guardrail"
			}
		}
	}

	// Step 7: consecutive-DR rule.
	kept := make([]Candidate, 0, len(withinGap))
	if b.IsDR() {
		lastDR, err := f.drHistory.LastDRInterpreter(ctx, envID)
		if err != nil {
			return res, err
		}
		res.LastDR = lastDR

		cond := drpolicy.Conditions{
			IsCriticalCoverage: len(free) == 1,
			AdminOverride:      opts.AdminOverride,
		}
		var blocked []domain.InterpreterProfile
		for _, p := range withinGap {
			decision := drpolicy.Evaluate(pol.Mode, pol.DRConsecutivePenalty, p.EmpCode, lastDR, cond)
			if decision.IsBlocked {
				blocked = append(blocked, p)
				continue
			}
			kept = append(kept, Candidate{
				Profile:      p,
				ProjectedGap: projections[p.EmpCode],
				DRDecision:   decision,
			})
		}
		if len(kept) == 0 && len(blocked) > 0 {
			// Only DR-blocked candidates remain: re-evaluate with the
			// no-alternatives override condition.
			cond.NoAlternativesAvailable = true
			for _, p := range blocked {
				decision := drpolicy.Evaluate(pol.Mode, pol.DRConsecutivePenalty, p.EmpCode, res.LastDR, cond)
				if decision.IsBlocked {
					res.Dropped[p.EmpCode] = "dr-blocked"
					continue
				}
				kept = append(kept, Candidate{
					Profile:      p,
					ProjectedGap: projections[p.EmpCode],
					DRDecision:   decision,
				})
			}
		} else {
			for _, p := range blocked {
				res.Dropped[p.EmpCode] = "dr-blocked"
			}
		}
		if len(kept) == 0 {
			res.EscalationReason = ReasonAllDRBlocked
			return res, nil
		}
	} else {
		for _, p := range withinGap {
			kept = append(kept, Candidate{Profile: p, ProjectedGap: projections[p.EmpCode]})
		}
	}

	// Step 8: manual pin narrows the list to the selected interpreter.
	if b.SelectedInterpreterEmpCode != nil && *b.SelectedInterpreterEmpCode != "" {
		pinned := lo.Filter(kept, func(c Candidate, _ int) bool {
			return c.Profile.EmpCode == *b.SelectedInterpreterEmpCode
		})
		if len(pinned) == 0 {
			for _, c := range kept {
				res.Dropped[c.Profile.EmpCode] = "not-pinned"
			}
			res.EscalationReason = ReasonNoCandidates
			res.Candidates = nil
			return res, nil
		}
		kept = pinned
	}

	res.Candidates = kept
	return res, nil
}
