package domain

import (
	"time"
)

// MeetingType classifies a booking and selects its threshold row.
type MeetingType string

const (
	MeetingTypeDR        MeetingType = "DR"
	MeetingTypeVIP       MeetingType = "VIP"
	MeetingTypeWeekly    MeetingType = "Weekly"
	MeetingTypeGeneral   MeetingType = "General"
	MeetingTypeUrgent    MeetingType = "Urgent"
	MeetingTypePresident MeetingType = "President"
	MeetingTypeOther     MeetingType = "Other"
)

// ValidMeetingType reports whether t is a known meeting type.
func ValidMeetingType(t MeetingType) bool {
	switch t {
	case MeetingTypeDR, MeetingTypeVIP, MeetingTypeWeekly, MeetingTypeGeneral,
		MeetingTypeUrgent, MeetingTypePresident, MeetingTypeOther:
		return true
	}
	return false
}

// DRType is the subkind carried by DR meetings.
type DRType string

const (
	DRTypePR    DRType = "DR_PR"
	DRTypeI     DRType = "DR_I"
	DRTypeII    DRType = "DR_II"
	DRTypeK     DRType = "DR_k"
	DRTypeOther DRType = "Other"
)

// BookingStatus is the assignment state of a booking.
type BookingStatus string

const (
	StatusWaiting  BookingStatus = "waiting"
	StatusApprove  BookingStatus = "approve"
	StatusCancel   BookingStatus = "cancel"
	StatusComplete BookingStatus = "complet"
)

// Terminal reports whether s is a terminal booking status.
func (s BookingStatus) Terminal() bool {
	return s == StatusApprove || s == StatusCancel || s == StatusComplete
}

// AutoAssignStatus is the scheduling state of a booking.
type AutoAssignStatus string

const (
	AutoAssignPending AutoAssignStatus = "pending"
	AutoAssignSkipped AutoAssignStatus = "skipped"
	AutoAssignDone    AutoAssignStatus = "done"
	AutoAssignLocked  AutoAssignStatus = "locked"
	AutoAssignFailed  AutoAssignStatus = "failed"
)

// PoolStatus tracks a booking while it is deferred in the pool.
// A nil *PoolStatus means the booking is not tracked by the pool.
type PoolStatus string

const (
	PoolWaiting    PoolStatus = "waiting"
	PoolReady      PoolStatus = "ready"
	PoolProcessing PoolStatus = "processing"
	PoolFailed     PoolStatus = "failed"
)

// BookingKind separates interpreter bookings from the room-only branch,
// which reuses storage but bypasses assignment.
type BookingKind string

const (
	KindInterpreter BookingKind = "INTERPRETER"
	KindRoom        BookingKind = "ROOM"
)

// AssignmentMode selects the policy profile governing scoring and DR rules.
type AssignmentMode string

const (
	ModeBalance AssignmentMode = "BALANCE"
	ModeUrgent  AssignmentMode = "URGENT"
	ModeNormal  AssignmentMode = "NORMAL"
	ModeCustom  AssignmentMode = "CUSTOM"
)

// ValidMode reports whether m is a known assignment mode.
func ValidMode(m AssignmentMode) bool {
	switch m {
	case ModeBalance, ModeUrgent, ModeNormal, ModeCustom:
		return true
	}
	return false
}

// Booking is a request for interpretation.
type Booking struct {
	ID           int64       `db:"id"`
	OwnerEmpCode string      `db:"owner_emp_code"`
	OwnerGroup   string      `db:"owner_group"`
	Kind         BookingKind `db:"booking_kind"`
	MeetingType  MeetingType `db:"meeting_type"`
	DRType       *DRType     `db:"dr_type"`
	TimeStart    time.Time   `db:"time_start"`
	TimeEnd      time.Time   `db:"time_end"`
	MeetingRoom  string      `db:"meeting_room"`
	LanguageCode *string     `db:"language_code"`

	// Manual pin: when set, the selector considers only this interpreter.
	SelectedInterpreterEmpCode *string `db:"selected_interpreter_emp_code"`

	Status             BookingStatus `db:"booking_status"`
	InterpreterEmpCode *string       `db:"interpreter_emp_code"`

	AutoAssignAt       *time.Time       `db:"auto_assign_at"`
	AutoAssignStatus   AutoAssignStatus `db:"auto_assign_status"`
	AutoAssignLockedAt *time.Time       `db:"auto_assign_locked_at"`
	AutoAssignLockedBy *string          `db:"auto_assign_locked_by"`

	PoolStatus             *PoolStatus `db:"pool_status"`
	PoolEntryTime          *time.Time  `db:"pool_entry_time"`
	PoolDeadlineTime       *time.Time  `db:"pool_deadline_time"`
	PoolProcessingAttempts int         `db:"pool_processing_attempts"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Duration returns the booked interval length.
func (b *Booking) Duration() time.Duration {
	return b.TimeEnd.Sub(b.TimeStart)
}

// DurationHours returns the booked interval length in hours.
func (b *Booking) DurationHours() float64 {
	return b.Duration().Hours()
}

// IsDR reports whether the booking is a DR meeting.
func (b *Booking) IsDR() bool {
	return b.MeetingType == MeetingTypeDR
}

// InterpreterProfile is an employee with role INTERPRETER as the engine sees it.
type InterpreterProfile struct {
	EmpCode   string   `db:"emp_code"`
	IsActive  bool     `db:"is_active"`
	DeptPath  string   `db:"dept_path"`
	Languages []string `db:"-"`
}

// OffersLanguage reports whether the interpreter carries the given language code.
func (p *InterpreterProfile) OffersLanguage(code string) bool {
	for _, l := range p.Languages {
		if l == code {
			return true
		}
	}
	return false
}

// Environment is an administrative grouping of centers, admins and interpreters.
type Environment struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

// ForwardTarget records an admin forwarding a booking to another environment.
type ForwardTarget struct {
	ID            int64     `db:"id"`
	BookingID     int64     `db:"booking_id"`
	EnvironmentID int64     `db:"environment_id"`
	Note          string    `db:"note"`
	CreatedAt     time.Time `db:"created_at"`
}
