package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{StatusWaiting, StatusWaiting, true},
		{StatusWaiting, StatusApprove, true},
		{StatusWaiting, StatusCancel, true},
		{StatusWaiting, StatusComplete, false},
		{StatusApprove, StatusWaiting, false},
		{StatusApprove, StatusApprove, true},
		{StatusApprove, StatusCancel, true},
		{StatusApprove, StatusComplete, true},
		{StatusCancel, StatusWaiting, false},
		{StatusCancel, StatusApprove, false},
		{StatusCancel, StatusComplete, false},
		{StatusCancel, StatusCancel, true},
		{StatusComplete, StatusWaiting, false},
		{StatusComplete, StatusApprove, false},
		{StatusComplete, StatusCancel, false},
		{StatusComplete, StatusComplete, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to),
			"transition %s -> %s", tt.from, tt.to)
	}
}

func TestValidateTransitionError(t *testing.T) {
	err := ValidateTransition(StatusCancel, StatusApprove)
	assert.Error(t, err)
	assert.Equal(t, CodePolicyViolation, CodeOf(err))

	assert.NoError(t, ValidateTransition(StatusWaiting, StatusApprove))
}

func TestErrorTaxonomy(t *testing.T) {
	err := NewError(CodeLockTimeout, "lock busy")
	assert.Equal(t, CodeLockTimeout, CodeOf(err))
	assert.True(t, IsTransient(err))
	assert.NotEmpty(t, err.CorrelationID)

	wrapped := WrapError(CodeConflict, "overlap", err)
	assert.Equal(t, CodeConflict, CodeOf(wrapped))
	assert.False(t, IsTransient(wrapped))

	conflict := InterpreterConflictError("00001", 42)
	assert.Equal(t, CodeInterpreterConflict, conflict.Code)
	assert.EqualValues(t, 42, conflict.ConflictingBookingID)
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, StatusWaiting.Terminal())
	assert.True(t, StatusApprove.Terminal())
	assert.True(t, StatusCancel.Terminal())
	assert.True(t, StatusComplete.Terminal())
}
