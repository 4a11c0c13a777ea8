package drpolicy

import (
	"context"

	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

// History supplies the last-assigned DR interpreter, scoped per environment
// with a global fallback when no environment resolves.
type History interface {
	LastDRInterpreter(ctx context.Context, envID *int64) (string, error)
}

// Decision is the outcome of evaluating one candidate against the
// consecutive-DR rule.
type Decision struct {
	IsBlocked       bool    `json:"isBlocked"`
	PenaltyApplied  bool    `json:"penaltyApplied"`
	PenaltyAmount   float64 `json:"penaltyAmount"`
	OverrideApplied bool    `json:"overrideApplied"`
	Reason          string  `json:"reason"`
}

// Conditions are the override inputs observed by the candidate filter.
type Conditions struct {
	// IsCriticalCoverage: the candidate is the only qualifying interpreter
	// after language/role/conflict filtering.
	IsCriticalCoverage bool
	// NoAlternativesAvailable: only DR-blocked candidates remain.
	NoAlternativesAvailable bool
	// AdminOverride: an administrator explicitly flagged this assignment.
	AdminOverride bool
}

// Policy applies the per-mode consecutive-DR rules.
type Policy struct {
	history History
	logger  *zap.Logger
}

// NewPolicy creates a DR policy over an assignment history source.
func NewPolicy(history History, logger *zap.Logger) *Policy {
	return &Policy{history: history, logger: logger}
}

// LastDRInterpreter exposes the scoped lookup for the candidate filter.
func (p *Policy) LastDRInterpreter(ctx context.Context, envID *int64) (string, error) {
	return p.history.LastDRInterpreter(ctx, envID)
}

// Evaluate decides block/penalty/override for a candidate who would be the
// consecutive DR assignee. A candidate who is not consecutive always passes.
func Evaluate(mode domain.AssignmentMode, drPenalty float64, candidate, lastDR string, cond Conditions) Decision {
	if lastDR == "" || candidate != lastDR {
		return Decision{Reason: "not consecutive"}
	}

	switch mode {
	case domain.ModeBalance:
		if cond.IsCriticalCoverage || cond.NoAlternativesAvailable {
			reason := "critical coverage override"
			if cond.NoAlternativesAvailable {
				reason = "no alternatives available"
			}
			return Decision{OverrideApplied: true, Reason: reason}
		}
		return Decision{IsBlocked: true, Reason: "consecutive DR forbidden in BALANCE mode"}

	case domain.ModeUrgent:
		return Decision{
			PenaltyApplied: true,
			PenaltyAmount:  -0.2,
			Reason:         "consecutive DR permitted in URGENT mode",
		}

	case domain.ModeNormal:
		if cond.AdminOverride {
			return Decision{OverrideApplied: true, Reason: "admin-flagged emergency"}
		}
		return Decision{
			PenaltyApplied: true,
			PenaltyAmount:  drPenalty,
			Reason:         "consecutive DR penalized in NORMAL mode",
		}

	case domain.ModeCustom:
		if cond.AdminOverride {
			return Decision{OverrideApplied: true, Reason: "explicit admin override"}
		}
		if drPenalty <= -1.0 {
			return Decision{IsBlocked: true, Reason: "consecutive DR blocked by custom penalty"}
		}
		return Decision{
			PenaltyApplied: true,
			PenaltyAmount:  drPenalty,
			Reason:         "consecutive DR penalized by custom policy",
		}
	}

	return Decision{Reason: "unknown mode, consecutive DR permitted"}
}
