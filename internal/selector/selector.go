package selector

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/candidates"
	"github.com/bookinghub/interpreter-assignment/internal/domain"
	"github.com/bookinghub/interpreter-assignment/internal/policy"
	"github.com/bookinghub/interpreter-assignment/internal/scoring"
)

// Decision statuses.
const (
	StatusAssigned  = "assigned"
	StatusEscalated = "escalated"
)

// Thresholds resolves the (urgent, general) pair for a booking.
type Thresholds interface {
	ResolveThresholds(ctx context.Context, envID *int64, mt domain.MeetingType, mode domain.AssignmentMode) (policy.Thresholds, error)
}

// Recency supplies last-assignment timestamps for LRS.
type Recency interface {
	LastAssignment(ctx context.Context, empCodes []string) (map[string]time.Time, error)
}

// CandidateBuilder runs the eligibility pipeline.
type CandidateBuilder interface {
	Build(ctx context.Context, b *domain.Booking, envID *int64, pol policy.EffectivePolicy, opts candidates.Options) (candidates.Result, error)
}

// Decision is the selector's full output: the pick (or escalation) plus
// every candidate's sub-scores and eligibility state for the decision log.
type Decision struct {
	Status  string              `json:"status"`
	EmpCode string              `json:"empCode,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Warning string              `json:"warning,omitempty"`
	Scores  []scoring.Breakdown `json:"scores"`

	Filter     candidates.Result `json:"-"`
	Thresholds policy.Thresholds `json:"thresholds"`
	Hours      map[string]float64
}

// Assigned reports whether the decision picked an interpreter.
func (d Decision) Assigned() bool { return d.Status == StatusAssigned }

// Selector orchestrates filtering and scoring into a single pick.
type Selector struct {
	thresholds Thresholds
	filter     CandidateBuilder
	recency    Recency
	logger     *zap.Logger

	nowFn func() time.Time
}

// New creates a selector.
func New(thresholds Thresholds, filter CandidateBuilder, recency Recency, logger *zap.Logger) *Selector {
	return &Selector{
		thresholds: thresholds,
		filter:     filter,
		recency:    recency,
		logger:     logger,
		nowFn:      time.Now,
	}
}

// Select runs one selection attempt for the booking. Excluded interpreters
// are removed up front, supporting the commit-time next-best retry.
func (s *Selector) Select(ctx context.Context, b *domain.Booking, envID *int64, pol policy.EffectivePolicy, exclude []string) (Decision, error) {
	thresholds, err := s.thresholds.ResolveThresholds(ctx, envID, b.MeetingType, pol.Mode)
	if err != nil {
		return Decision{}, err
	}

	filterRes, err := s.filter.Build(ctx, b, envID, pol, candidates.Options{Exclude: exclude})
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Filter:     filterRes,
		Thresholds: thresholds,
		Hours:      filterRes.Hours,
	}
	if filterRes.GuardrailRelaxed {
		decision.Warning = candidates.ReasonFairnessGuardrail
	}

	if len(filterRes.Candidates) == 0 {
		decision.Status = StatusEscalated
		decision.Reason = filterRes.EscalationReason
		s.logger.Info("Selection escalated",
			zap.Int64("booking_id", b.ID),
			zap.String("reason", decision.Reason),
		)
		return decision, nil
	}

	scope := lo.Map(filterRes.Candidates, func(c candidates.Candidate, _ int) string {
		return c.Profile.EmpCode
	})
	lastAssigned, err := s.recency.LastAssignment(ctx, scope)
	if err != nil {
		return Decision{}, err
	}

	input := scoring.Input{
		Now:                 s.nowFn(),
		TimeStart:           b.TimeStart,
		UrgentThresholdDays: thresholds.UrgentThresholdDays,
		FairnessWindowDays:  pol.FairnessWindowDays,
		Weights: scoring.Weights{
			Fair:    pol.WFair,
			Urgency: pol.WUrgency,
			LRS:     pol.WLRS,
		},
		Hours:        filterRes.Hours,
		LastAssigned: lastAssigned,
	}

	breakdowns := lo.Map(filterRes.Candidates, func(c candidates.Candidate, _ int) scoring.Breakdown {
		penalty := 0.0
		if c.DRDecision.PenaltyApplied {
			penalty = c.DRDecision.PenaltyAmount
		}
		return scoring.Score(input, c.Profile.EmpCode, penalty)
	})
	scoring.Sort(breakdowns)

	decision.Status = StatusAssigned
	decision.EmpCode = breakdowns[0].EmpCode
	decision.Scores = breakdowns

	s.logger.Info("Interpreter selected",
		zap.Int64("booking_id", b.ID),
		zap.String("emp_code", decision.EmpCode),
		zap.Float64("total", breakdowns[0].Total),
		zap.Int("candidates", len(breakdowns)),
	)
	return decision, nil
}
