package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/assign"
	"github.com/bookinghub/interpreter-assignment/internal/assignlog"
	"github.com/bookinghub/interpreter-assignment/internal/booking"
	"github.com/bookinghub/interpreter-assignment/internal/config"
	"github.com/bookinghub/interpreter-assignment/internal/conflict"
	"github.com/bookinghub/interpreter-assignment/internal/db"
	"github.com/bookinghub/interpreter-assignment/internal/directory"
	"github.com/bookinghub/interpreter-assignment/internal/domain"
	"github.com/bookinghub/interpreter-assignment/internal/environment"
	"github.com/bookinghub/interpreter-assignment/internal/policy"
	"github.com/bookinghub/interpreter-assignment/internal/pool"
	"github.com/bookinghub/interpreter-assignment/internal/scheduler"
)

// Service is the transport-agnostic inbound surface of the assignment engine.
type Service struct {
	dbc         *db.Client
	bookings    *booking.Store
	pool        *pool.Pool
	policies    *policy.Store
	env         *environment.Resolver
	conflicts   *conflict.Checker
	directory   *directory.Store
	coordinator *assign.Coordinator
	scheduler   *scheduler.Scheduler
	logs        *assignlog.Writer
	features    config.FeatureConfig
	logger      *zap.Logger

	nowFn func() time.Time
}

// New wires the service façade.
func New(dbc *db.Client, bookings *booking.Store, p *pool.Pool, policies *policy.Store,
	env *environment.Resolver, conflicts *conflict.Checker, dir *directory.Store,
	coordinator *assign.Coordinator, sched *scheduler.Scheduler, logs *assignlog.Writer,
	features config.FeatureConfig, logger *zap.Logger) *Service {
	return &Service{
		dbc:         dbc,
		bookings:    bookings,
		pool:        p,
		policies:    policies,
		env:         env,
		conflicts:   conflicts,
		directory:   dir,
		coordinator: coordinator,
		scheduler:   sched,
		logs:        logs,
		features:    features,
		logger:      logger,
		nowFn:       time.Now,
	}
}

// CreateBookingRequest is the externally validated submission payload.
type CreateBookingRequest struct {
	OwnerEmpCode               string
	OwnerGroup                 string
	Kind                       domain.BookingKind
	MeetingType                domain.MeetingType
	DRType                     *domain.DRType
	TimeStart                  time.Time
	TimeEnd                    time.Time
	MeetingRoom                string
	LanguageCode               *string
	SelectedInterpreterEmpCode *string
}

// CreateBookingResult reports the stored booking and its scheduling plan.
type CreateBookingResult struct {
	BookingID        int64
	AutoAssignAt     *time.Time
	AutoAssignStatus domain.AutoAssignStatus
	Pooled           bool
	ImmediateOutcome *assign.Outcome
}

func (s *Service) validateCreate(req *CreateBookingRequest) error {
	if req.OwnerEmpCode == "" {
		return domain.NewError(domain.CodeBadRequest, "ownerEmpCode required")
	}
	if req.MeetingRoom == "" {
		return domain.NewError(domain.CodeBadRequest, "meetingRoom required")
	}
	if !domain.ValidMeetingType(req.MeetingType) {
		return domain.NewErrorf(domain.CodeBadRequest, "unknown meeting type %q", req.MeetingType)
	}
	if !req.TimeEnd.After(req.TimeStart) {
		return domain.NewError(domain.CodeBadRequest, "timeEnd must be after timeStart")
	}
	if req.Kind == "" {
		req.Kind = domain.KindInterpreter
	}
	if req.Kind == domain.KindRoom && !s.features.RoomBookingEnabled {
		return domain.NewError(domain.CodeBadRequest, "room bookings are disabled")
	}
	return nil
}

// CreateBooking stores a booking and plans its assignment: the auto-assign
// window is computed from policy and thresholds, and the booking is pooled
// or assigned immediately when the window is already open.
func (s *Service) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResult, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	if busy, err := s.conflicts.HasRoomConflict(ctx, req.MeetingRoom, req.TimeStart, req.TimeEnd); err != nil {
		return nil, err
	} else if busy {
		return nil, domain.NewErrorf(domain.CodeConflict, "room %s already booked", req.MeetingRoom)
	}

	b := &domain.Booking{
		OwnerEmpCode:               req.OwnerEmpCode,
		OwnerGroup:                 req.OwnerGroup,
		Kind:                       req.Kind,
		MeetingType:                req.MeetingType,
		DRType:                     req.DRType,
		TimeStart:                  req.TimeStart,
		TimeEnd:                    req.TimeEnd,
		MeetingRoom:                req.MeetingRoom,
		LanguageCode:               req.LanguageCode,
		SelectedInterpreterEmpCode: req.SelectedInterpreterEmpCode,
		Status:                     domain.StatusWaiting,
		AutoAssignStatus:           domain.AutoAssignSkipped,
	}

	// The room-only branch stores the booking and stops short of assignment.
	if req.Kind == domain.KindRoom {
		id, err := s.bookings.Create(ctx, b)
		if err != nil {
			return nil, err
		}
		return &CreateBookingResult{BookingID: id, AutoAssignStatus: domain.AutoAssignSkipped}, nil
	}

	envID, err := s.env.Resolve(ctx, b)
	if err != nil {
		return nil, err
	}
	pol, err := s.policies.EffectivePolicy(ctx, envID)
	if err != nil {
		return nil, err
	}

	result := &CreateBookingResult{AutoAssignStatus: domain.AutoAssignSkipped}
	now := s.nowFn()

	if pol.AutoAssignEnabled {
		thresholds, err := s.policies.ResolveThresholds(ctx, envID, req.MeetingType, pol.Mode)
		if err != nil {
			return nil, err
		}

		autoAssignAt := pool.DeadlineFor(req.TimeStart, thresholds.UrgentThresholdDays)
		if autoAssignAt.Before(now) {
			autoAssignAt = now
		}
		if autoAssignAt.After(req.TimeStart) {
			autoAssignAt = req.TimeStart
		}
		deadline := pool.DeadlineFor(req.TimeStart, thresholds.UrgentThresholdDays)

		entryTime := now
		poolStatus := domain.PoolWaiting
		b.AutoAssignAt = &autoAssignAt
		b.AutoAssignStatus = domain.AutoAssignPending
		b.PoolStatus = &poolStatus
		b.PoolEntryTime = &entryTime
		b.PoolDeadlineTime = &deadline

		result.AutoAssignAt = &autoAssignAt
		result.AutoAssignStatus = domain.AutoAssignPending
		result.Pooled = true
	}

	id, err := s.bookings.Create(ctx, b)
	if err != nil {
		return nil, err
	}
	b.ID = id
	result.BookingID = id

	s.logger.Info("Booking created",
		zap.Int64("booking_id", id),
		zap.String("meeting_type", string(req.MeetingType)),
		zap.Bool("pooled", result.Pooled),
	)

	// Window already open: attempt the assignment in line with creation.
	if result.Pooled && !result.AutoAssignAt.After(now) {
		if won, err := s.pool.MarkProcessing(ctx, id); err == nil && won {
			outcome, err := s.coordinator.Assign(ctx, id)
			if err != nil {
				s.logger.Warn("Immediate assignment failed, booking stays pooled",
					zap.Int64("booking_id", id),
					zap.Error(err),
				)
			} else {
				result.ImmediateOutcome = &outcome
			}
		}
	}
	return result, nil
}

// Assign runs one idempotent assignment for bookingID.
func (s *Service) Assign(ctx context.Context, bookingID int64) (assign.Outcome, error) {
	return s.coordinator.Assign(ctx, bookingID)
}

// AdminApprove assigns empCode directly, bypassing auto-assignment but still
// holding the per-interpreter lock across the conflict check and the commit.
func (s *Service) AdminApprove(ctx context.Context, bookingID int64, empCode, note string) error {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := domain.ValidateTransition(b.Status, domain.StatusApprove); err != nil {
		return err
	}

	envID, err := s.env.Resolve(ctx, b)
	if err != nil {
		return err
	}
	ok, err := s.directory.IsActiveInterpreter(ctx, empCode, envID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewErrorf(domain.CodeInvalidInterpreter,
			"%s is not an active interpreter in scope", empCode)
	}

	lock, err := s.dbc.AcquireNamedLock(ctx, "interpreter:"+empCode, 5*time.Second)
	if err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	err = s.dbc.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		conflictID, busy, err := s.conflicts.FindInterpreterConflictTx(ctx, tx, empCode, b.TimeStart, b.TimeEnd, b.ID)
		if err != nil {
			return err
		}
		if busy {
			return domain.InterpreterConflictError(empCode, conflictID)
		}
		if err := s.bookings.Approve(ctx, tx, bookingID, empCode); err != nil {
			return err
		}

		rec := assignlog.Record{
			BookingID:          bookingID,
			EnvironmentID:      envID,
			MeetingType:        string(b.MeetingType),
			Outcome:            assignlog.OutcomeAssigned,
			InterpreterEmpCode: &empCode,
			Reason:             "admin-approve: " + note,
		}
		if err := s.logs.WriteTx(ctx, tx, rec); err != nil {
			s.logger.Warn("Admin approve log failed, degrading to async writer",
				zap.Int64("booking_id", bookingID), zap.Error(err))
			s.logs.Write(rec)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Booking approved by admin",
		zap.Int64("booking_id", bookingID),
		zap.String("emp_code", empCode),
	)
	return nil
}

// AdminForward records forwarding targets for a waiting booking; future
// auto-assign passes resolve the environment from the newest target.
func (s *Service) AdminForward(ctx context.Context, bookingID int64, environmentIDs []int64, note string) error {
	if !s.features.ForwardingEnabled {
		return domain.NewError(domain.CodePolicyViolation, "forwarding is disabled")
	}
	if len(environmentIDs) == 0 {
		return domain.NewError(domain.CodeBadRequest, "at least one target environment required")
	}

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != domain.StatusWaiting {
		return domain.NewErrorf(domain.CodePolicyViolation,
			"only waiting bookings can be forwarded, booking is %s", b.Status)
	}

	limit := s.nowFn().AddDate(0, s.features.ForwardMonthLimit, 0)
	if b.TimeStart.After(limit) {
		return domain.NewErrorf(domain.CodeBadRequest,
			"booking starts beyond the %d-month forward limit", s.features.ForwardMonthLimit)
	}

	for _, envID := range environmentIDs {
		exists, err := s.env.EnvironmentExists(ctx, envID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.NewErrorf(domain.CodeNotFound, "environment %d not found", envID)
		}
	}

	if err := s.env.RecordForward(ctx, bookingID, environmentIDs, note); err != nil {
		return err
	}

	s.logs.Write(assignlog.Record{
		BookingID:   bookingID,
		MeetingType: string(b.MeetingType),
		Outcome:     assignlog.OutcomeForwarded,
		Reason:      fmt.Sprintf("admin-forward to %d environment(s): %s", len(environmentIDs), note),
	})
	s.logger.Info("Booking forwarded",
		zap.Int64("booking_id", bookingID),
		zap.Int64s("environment_ids", environmentIDs),
	)
	return nil
}

// CancelBooking cancels from any non-terminal state and clears pool fields.
func (s *Service) CancelBooking(ctx context.Context, bookingID int64) error {
	return s.bookings.UpdateStatus(ctx, bookingID, domain.StatusCancel)
}

// PatchBookingStatus applies a status change under the transition table.
func (s *Service) PatchBookingStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error {
	switch status {
	case domain.StatusWaiting, domain.StatusApprove, domain.StatusCancel, domain.StatusComplete:
	default:
		return domain.NewErrorf(domain.CodeBadRequest, "unknown booking status %q", status)
	}
	return s.bookings.UpdateStatus(ctx, bookingID, status)
}

// ETA is the derived scheduling view of one booking.
type ETA struct {
	UrgentFrom        time.Time
	SchedulerFrom     time.Time
	FirstAutoAssignAt time.Time
	ETASeconds        int64
}

// ComputeETA derives the assignment window for a booking from policy state.
func (s *Service) ComputeETA(ctx context.Context, bookingID int64) (*ETA, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	envID, err := s.env.Resolve(ctx, b)
	if err != nil {
		return nil, err
	}
	pol, err := s.policies.EffectivePolicy(ctx, envID)
	if err != nil {
		return nil, err
	}
	thresholds, err := s.policies.ResolveThresholds(ctx, envID, b.MeetingType, pol.Mode)
	if err != nil {
		return nil, err
	}

	eta := DeriveETA(b.TimeStart, b.AutoAssignAt, thresholds.UrgentThresholdDays, s.nowFn())
	return &eta, nil
}

// DeriveETA is the pure window computation behind ComputeETA.
func DeriveETA(timeStart time.Time, autoAssignAt *time.Time, urgentThresholdDays int, now time.Time) ETA {
	urgentFrom := timeStart.AddDate(0, 0, -urgentThresholdDays)
	schedulerFrom := urgentFrom
	if autoAssignAt != nil {
		schedulerFrom = *autoAssignAt
	}

	first := urgentFrom
	if schedulerFrom.After(first) {
		first = schedulerFrom
	}

	etaSeconds := int64(first.Sub(now).Seconds())
	if etaSeconds < 0 {
		etaSeconds = 0
	}
	return ETA{
		UrgentFrom:        urgentFrom,
		SchedulerFrom:     schedulerFrom,
		FirstAutoAssignAt: first,
		ETASeconds:        etaSeconds,
	}
}

// RunSchedulerPass triggers a synchronous pass.
func (s *Service) RunSchedulerPass(ctx context.Context, kind string) (scheduler.PassResult, error) {
	if kind != scheduler.PassKindTick && kind != scheduler.PassKindManual {
		return scheduler.PassResult{}, domain.NewErrorf(domain.CodeBadRequest, "unknown pass kind %q", kind)
	}
	return s.scheduler.RunPass(ctx, kind)
}
