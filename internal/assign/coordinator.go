package assign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/assignlog"
	"github.com/bookinghub/interpreter-assignment/internal/db"
	"github.com/bookinghub/interpreter-assignment/internal/domain"
	"github.com/bookinghub/interpreter-assignment/internal/fairness"
	"github.com/bookinghub/interpreter-assignment/internal/metrics"
	"github.com/bookinghub/interpreter-assignment/internal/policy"
	"github.com/bookinghub/interpreter-assignment/internal/selector"
)

// Outcome statuses for one assign() run.
const (
	OutcomeAssigned  = "assigned"
	OutcomeSkipped   = "skipped"
	OutcomeEscalated = "escalated"
	OutcomeFailed    = "failed"
)

// Outcome summarizes one end-to-end assignment run.
type Outcome struct {
	Status        string
	EmpCode       string
	Reason        string
	CorrelationID string
}

// Lock is a held named lock.
type Lock interface {
	Release(ctx context.Context) error
}

// LockManager hands out storage-engine named locks.
type LockManager interface {
	Acquire(ctx context.Context, name string, timeout time.Duration) (Lock, error)
}

// TxRunner runs a function inside a storage transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// Bookings is the transactional booking access the coordinator needs.
type Bookings interface {
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Booking, error)
	CommitAssignment(ctx context.Context, tx *sqlx.Tx, bookingID int64, empCode string) error
	SetAutoAssignStatus(ctx context.Context, tx *sqlx.Tx, bookingID int64, status domain.AutoAssignStatus) error
	MarkEscalatedTx(ctx context.Context, tx *sqlx.Tx, bookingID int64, hardFail bool) error
	ClearPoolFieldsTx(ctx context.Context, tx *sqlx.Tx, bookingID int64) error
}

// Selecting produces one selection decision.
type Selecting interface {
	Select(ctx context.Context, b *domain.Booking, envID *int64, pol policy.EffectivePolicy, exclude []string) (selector.Decision, error)
}

// Policies resolves the effective policy for a scope.
type Policies interface {
	EffectivePolicy(ctx context.Context, envID *int64) (policy.EffectivePolicy, error)
}

// EnvResolver maps a booking to its environment scope.
type EnvResolver interface {
	Resolve(ctx context.Context, b *domain.Booking) (*int64, error)
}

// Conflicts re-checks interpreter overlaps inside the transaction.
type Conflicts interface {
	FindInterpreterConflictTx(ctx context.Context, tx *sqlx.Tx, empCode string, start, end time.Time, excludeBookingID int64) (int64, bool, error)
}

// DecisionLog appends assignment log rows.
type DecisionLog interface {
	WriteTx(ctx context.Context, tx *sqlx.Tx, rec assignlog.Record) error
	Write(rec assignlog.Record)
}

// Notifier receives fire-and-forget hand-offs after a commit (invites,
// calendar, forwarding integrations live behind it).
type Notifier interface {
	AssignmentCommitted(ctx context.Context, b *domain.Booking, empCode string)
}

// NopNotifier discards hand-offs.
type NopNotifier struct{}

// AssignmentCommitted implements Notifier.
func (NopNotifier) AssignmentCommitted(context.Context, *domain.Booking, string) {}

// Config holds coordinator timeouts and bounds.
type Config struct {
	LockTimeout time.Duration // default 5s
	TxDeadline  time.Duration // default 10s
	MaxAttempts int           // escalations before autoAssignStatus=failed, default 3
}

func (c *Config) applyDefaults() {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.TxDeadline <= 0 {
		c.TxDeadline = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Coordinator runs end-to-end assignments: lock, reload, select, commit, log.
type Coordinator struct {
	cfg       Config
	locks     LockManager
	tx        TxRunner
	bookings  Bookings
	selector  Selecting
	policies  Policies
	env       EnvResolver
	conflicts Conflicts
	logs      DecisionLog
	notifier  Notifier
	logger    *zap.Logger

	nowFn func() time.Time
}

// NewCoordinator wires a run coordinator.
func NewCoordinator(cfg Config, locks LockManager, tx TxRunner, bookings Bookings,
	sel Selecting, policies Policies, env EnvResolver, conflicts Conflicts,
	logs DecisionLog, notifier Notifier, logger *zap.Logger) *Coordinator {
	cfg.applyDefaults()
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		cfg:       cfg,
		locks:     locks,
		tx:        tx,
		bookings:  bookings,
		selector:  sel,
		policies:  policies,
		env:       env,
		conflicts: conflicts,
		logs:      logs,
		notifier:  notifier,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Assign runs one idempotent assignment for bookingID. Re-entrant calls
// serialize on the per-booking named lock; a second call after success
// returns SKIPPED with no mutation.
func (c *Coordinator) Assign(ctx context.Context, bookingID int64) (Outcome, error) {
	started := time.Now()
	defer func() {
		metrics.AssignmentDuration.Observe(time.Since(started).Seconds())
	}()

	corr := uuid.NewString()
	outcome := Outcome{Status: OutcomeFailed, CorrelationID: corr}

	lockStart := time.Now()
	bookingLock, err := c.locks.Acquire(ctx, fmt.Sprintf("interpreter-assign:%d", bookingID), c.cfg.LockTimeout)
	metrics.LockWaitDuration.WithLabelValues("booking").Observe(time.Since(lockStart).Seconds())
	if err != nil {
		if domain.CodeOf(err) == domain.CodeLockTimeout {
			metrics.LockTimeouts.Inc()
		}
		return outcome, err
	}
	defer bookingLock.Release(context.WithoutCancel(ctx))

	var committed *domain.Booking
	var committedEmp string
	var heldLocks []Lock
	defer func() {
		for _, l := range heldLocks {
			l.Release(context.WithoutCancel(ctx))
		}
	}()

	txCtx, cancel := context.WithTimeout(ctx, c.cfg.TxDeadline)
	defer cancel()

	err = c.tx.WithTransaction(txCtx, func(tx *sqlx.Tx) error {
		b, err := c.bookings.GetForUpdate(txCtx, tx, bookingID)
		if err != nil {
			return err
		}
		now := c.nowFn()

		// State validation: anything but an open, due, unassigned booking
		// is a clean skip with no mutation beyond pool cleanup.
		if b.Status == domain.StatusCancel {
			if err := c.bookings.ClearPoolFieldsTx(txCtx, tx, bookingID); err != nil {
				return err
			}
			c.logDecision(txCtx, tx, b, nil, assignlog.Record{
				Outcome: assignlog.OutcomeSkipped,
				Reason:  assignlog.OutcomeSkippedCancelled,
			}, corr)
			outcome = Outcome{Status: OutcomeSkipped, Reason: assignlog.OutcomeSkippedCancelled, CorrelationID: corr}
			return nil
		}
		if b.Status != domain.StatusWaiting || b.InterpreterEmpCode != nil ||
			b.AutoAssignAt == nil || b.AutoAssignAt.After(now) {
			outcome = Outcome{Status: OutcomeSkipped, Reason: "not eligible", CorrelationID: corr}
			return nil
		}

		envID, err := c.env.Resolve(txCtx, b)
		if err != nil {
			return err
		}
		pol, err := c.policies.EffectivePolicy(txCtx, envID)
		if err != nil {
			return err
		}
		if !pol.AutoAssignEnabled {
			if err := c.bookings.SetAutoAssignStatus(txCtx, tx, bookingID, domain.AutoAssignSkipped); err != nil {
				return err
			}
			outcome = Outcome{Status: OutcomeSkipped, Reason: "auto-assign disabled", CorrelationID: corr}
			return nil
		}

		// Selection with a single next-best retry when the commit-time
		// conflict re-check under the interpreter lock fails.
		var exclude []string
		var lastConflict int64
		for attempt := 0; attempt < 2; attempt++ {
			dec, err := c.selector.Select(txCtx, b, envID, pol, exclude)
			if err != nil {
				return err
			}

			if !dec.Assigned() {
				reason := dec.Reason
				if reason == "" {
					reason = "no decision"
				}
				if lastConflict != 0 {
					reason = string(domain.CodeInterpreterConflict)
				}
				hardFail := b.PoolProcessingAttempts+1 >= c.cfg.MaxAttempts
				if err := c.bookings.MarkEscalatedTx(txCtx, tx, bookingID, hardFail); err != nil {
					return err
				}
				c.logDecision(txCtx, tx, b, envID, assignlog.Record{
					Outcome:         assignlog.OutcomeEscalated,
					Reason:          reason,
					ScoreBreakdown:  scoresPayload(dec),
					PreFairness:     hoursPayload(dec.Hours),
					ConflictSummary: conflictPayload(lastConflict),
				}, corr)
				metrics.EscalationsTotal.WithLabelValues(reason).Inc()
				outcome = Outcome{Status: OutcomeEscalated, Reason: reason, CorrelationID: corr}
				return nil
			}

			metrics.CandidateCount.Observe(float64(len(dec.Scores)))

			lockStart := time.Now()
			interpLock, err := c.locks.Acquire(txCtx, "interpreter:"+dec.EmpCode, c.cfg.LockTimeout)
			metrics.LockWaitDuration.WithLabelValues("interpreter").Observe(time.Since(lockStart).Seconds())
			if err != nil {
				if domain.CodeOf(err) == domain.CodeLockTimeout {
					metrics.LockTimeouts.Inc()
				}
				return err
			}
			heldLocks = append(heldLocks, interpLock)

			conflictID, busy, err := c.conflicts.FindInterpreterConflictTx(txCtx, tx, dec.EmpCode, b.TimeStart, b.TimeEnd, b.ID)
			if err != nil {
				return err
			}
			if busy {
				lastConflict = conflictID
				exclude = append(exclude, dec.EmpCode)
				c.logger.Warn("Commit-time interpreter conflict, retrying with next best",
					zap.Int64("booking_id", bookingID),
					zap.String("emp_code", dec.EmpCode),
					zap.Int64("conflicting_booking_id", conflictID),
				)
				continue
			}

			if err := c.bookings.CommitAssignment(txCtx, tx, bookingID, dec.EmpCode); err != nil {
				return err
			}

			rec := assignlog.Record{
				Outcome:            assignlog.OutcomeAssigned,
				InterpreterEmpCode: &dec.EmpCode,
				Reason:             dec.Warning,
				ScoreBreakdown:     scoresPayload(dec),
				PreFairness:        hoursPayload(dec.Hours),
				PostFairness:       hoursPayload(projectedHours(dec.Hours, dec.EmpCode, b.DurationHours())),
				DRDecision:         drPayload(dec),
				ConflictSummary:    conflictPayload(lastConflict),
			}
			c.logDecision(txCtx, tx, b, envID, rec, corr)

			committed = b
			committedEmp = dec.EmpCode
			outcome = Outcome{Status: OutcomeAssigned, EmpCode: dec.EmpCode, CorrelationID: corr}
			return nil
		}

		// Both attempts hit commit-time conflicts.
		hardFail := b.PoolProcessingAttempts+1 >= c.cfg.MaxAttempts
		if err := c.bookings.MarkEscalatedTx(txCtx, tx, bookingID, hardFail); err != nil {
			return err
		}
		reason := string(domain.CodeInterpreterConflict)
		c.logDecision(txCtx, tx, b, envID, assignlog.Record{
			Outcome:         assignlog.OutcomeEscalated,
			Reason:          reason,
			ConflictSummary: conflictPayload(lastConflict),
		}, corr)
		metrics.EscalationsTotal.WithLabelValues(reason).Inc()
		outcome = Outcome{Status: OutcomeEscalated, Reason: reason, CorrelationID: corr}
		return nil
	})
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues(OutcomeFailed).Inc()
		return Outcome{Status: OutcomeFailed, CorrelationID: corr}, err
	}

	metrics.AssignmentsTotal.WithLabelValues(outcome.Status).Inc()

	if committed != nil {
		c.logger.Info("Booking assigned",
			zap.Int64("booking_id", bookingID),
			zap.String("emp_code", committedEmp),
			zap.String("correlation_id", corr),
		)
		go c.notifier.AssignmentCommitted(context.WithoutCancel(ctx), committed, committedEmp)
	}
	return outcome, nil
}

// logDecision writes the decision row inside the transaction; a failed write
// degrades to the async fallback path and never fails the assignment.
func (c *Coordinator) logDecision(ctx context.Context, tx *sqlx.Tx, b *domain.Booking, envID *int64, rec assignlog.Record, corr string) {
	rec.BookingID = b.ID
	rec.EnvironmentID = envID
	rec.MeetingType = string(b.MeetingType)
	rec.CorrelationID = corr
	if err := c.logs.WriteTx(ctx, tx, rec); err != nil {
		c.logger.Warn("In-transaction decision log failed, degrading to async writer",
			zap.Int64("booking_id", b.ID),
			zap.Error(err),
		)
		c.logs.Write(rec)
	}
}

func projectedHours(hours map[string]float64, empCode string, durationHours float64) map[string]float64 {
	projected := make(map[string]float64, len(hours))
	for k, v := range hours {
		projected[k] = v
	}
	projected[empCode] += durationHours
	return projected
}

func hoursPayload(hours map[string]float64) db.JSONB {
	if hours == nil {
		return nil
	}
	return db.JSONB{
		"hours": hours,
		"gap":   fairness.Gap(hours),
	}
}

func scoresPayload(dec selector.Decision) db.JSONB {
	if len(dec.Scores) == 0 {
		return nil
	}
	raw, err := json.Marshal(dec.Scores)
	if err != nil {
		return nil
	}
	var scores []interface{}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil
	}
	return db.JSONB{"scores": scores}
}

func drPayload(dec selector.Decision) db.JSONB {
	// Candidates dropped by the consecutive-DR block are part of the
	// decision even when another interpreter wins.
	var blocked []string
	for code, stage := range dec.Filter.Dropped {
		if stage == "dr-blocked" {
			blocked = append(blocked, code)
		}
	}

	for _, cand := range dec.Filter.Candidates {
		if cand.Profile.EmpCode != dec.EmpCode {
			continue
		}
		d := cand.DRDecision
		if d.Reason == "" && len(blocked) == 0 {
			return nil
		}
		blocking := "NONE"
		switch {
		case len(blocked) > 0:
			blocking = "BLOCK"
		case d.PenaltyApplied:
			blocking = "PENALTY"
		case d.OverrideApplied:
			blocking = "OVERRIDE"
		}
		payload := db.JSONB{
			"blockingBehavior": blocking,
			"penaltyAmount":    d.PenaltyAmount,
			"overrideApplied":  d.OverrideApplied,
			"reason":           d.Reason,
			"lastDR":           dec.Filter.LastDR,
		}
		if len(blocked) > 0 {
			payload["blockedCandidates"] = blocked
		}
		return payload
	}
	if len(blocked) > 0 {
		return db.JSONB{
			"blockingBehavior":  "BLOCK",
			"blockedCandidates": blocked,
			"lastDR":            dec.Filter.LastDR,
		}
	}
	return nil
}

func conflictPayload(conflictID int64) db.JSONB {
	if conflictID == 0 {
		return nil
	}
	return db.JSONB{"conflictingBookingId": conflictID}
}
