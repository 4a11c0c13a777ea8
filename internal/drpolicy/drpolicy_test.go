package drpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

func TestEvaluateNotConsecutive(t *testing.T) {
	d := Evaluate(domain.ModeBalance, -0.5, "00002", "00001", Conditions{})
	assert.False(t, d.IsBlocked)
	assert.False(t, d.PenaltyApplied)

	// No DR history at all.
	d = Evaluate(domain.ModeBalance, -0.5, "00001", "", Conditions{})
	assert.False(t, d.IsBlocked)
}

func TestEvaluateBalanceBlocks(t *testing.T) {
	d := Evaluate(domain.ModeBalance, -1.0, "00001", "00001", Conditions{})
	assert.True(t, d.IsBlocked)
	assert.False(t, d.OverrideApplied)
}

func TestEvaluateBalanceOverrides(t *testing.T) {
	d := Evaluate(domain.ModeBalance, -1.0, "00001", "00001", Conditions{IsCriticalCoverage: true})
	assert.False(t, d.IsBlocked)
	assert.True(t, d.OverrideApplied)

	d = Evaluate(domain.ModeBalance, -1.0, "00001", "00001", Conditions{NoAlternativesAvailable: true})
	assert.False(t, d.IsBlocked)
	assert.True(t, d.OverrideApplied)
	assert.Equal(t, "no alternatives available", d.Reason)
}

func TestEvaluateUrgentLightPenalty(t *testing.T) {
	d := Evaluate(domain.ModeUrgent, -0.5, "00001", "00001", Conditions{})
	assert.False(t, d.IsBlocked)
	assert.True(t, d.PenaltyApplied)
	assert.Equal(t, -0.2, d.PenaltyAmount)
}

func TestEvaluateNormalPolicyPenalty(t *testing.T) {
	d := Evaluate(domain.ModeNormal, -0.5, "00001", "00001", Conditions{})
	assert.True(t, d.PenaltyApplied)
	assert.Equal(t, -0.5, d.PenaltyAmount)

	d = Evaluate(domain.ModeNormal, -0.5, "00001", "00001", Conditions{AdminOverride: true})
	assert.True(t, d.OverrideApplied)
	assert.False(t, d.PenaltyApplied)
}

func TestEvaluateCustomDerivesBlock(t *testing.T) {
	// Penalty at or below -1.0 blocks.
	d := Evaluate(domain.ModeCustom, -1.0, "00001", "00001", Conditions{})
	assert.True(t, d.IsBlocked)

	// Explicit admin override unblocks.
	d = Evaluate(domain.ModeCustom, -1.5, "00001", "00001", Conditions{AdminOverride: true})
	assert.False(t, d.IsBlocked)
	assert.True(t, d.OverrideApplied)

	// Softer penalty applies as a score adjustment.
	d = Evaluate(domain.ModeCustom, -0.3, "00001", "00001", Conditions{})
	assert.False(t, d.IsBlocked)
	assert.True(t, d.PenaltyApplied)
	assert.Equal(t, -0.3, d.PenaltyAmount)
}
