package domain

// allowedTransitions encodes the booking status transition table.
var allowedTransitions = map[BookingStatus]map[BookingStatus]bool{
	StatusWaiting: {
		StatusWaiting: true,
		StatusApprove: true,
		StatusCancel:  true,
	},
	StatusApprove: {
		StatusApprove:  true,
		StatusCancel:   true,
		StatusComplete: true,
	},
	StatusCancel: {
		StatusCancel: true,
	},
	StatusComplete: {
		StatusComplete: true,
	},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to BookingStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ValidateTransition returns a POLICY_VIOLATION error for forbidden pairs.
func ValidateTransition(from, to BookingStatus) error {
	if !CanTransition(from, to) {
		return NewErrorf(CodePolicyViolation, "booking status transition %s -> %s not allowed", from, to)
	}
	return nil
}
