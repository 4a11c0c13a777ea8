package assignlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/db"
	"github.com/bookinghub/interpreter-assignment/internal/metrics"
)

// Outcome values recorded per decision.
const (
	OutcomeAssigned         = "assigned"
	OutcomeEscalated        = "escalated"
	OutcomeRejected         = "rejected"
	OutcomeSkipped          = "skipped"
	OutcomeForwarded        = "forwarded"
	OutcomeSkippedCancelled = "SKIPPED_CANCELLED"
)

// Record is one immutable assignment decision row.
type Record struct {
	ID                 uuid.UUID  `db:"id"`
	BookingID          int64      `db:"booking_id"`
	EnvironmentID      *int64     `db:"environment_id"`
	MeetingType        string     `db:"meeting_type"`
	Outcome            string     `db:"outcome"`
	InterpreterEmpCode *string    `db:"interpreter_emp_code"`
	Reason             string     `db:"reason"`
	PreFairness        db.JSONB   `db:"pre_fairness"`
	PostFairness       db.JSONB   `db:"post_fairness"`
	ScoreBreakdown     db.JSONB   `db:"score_breakdown"`
	DRDecision         db.JSONB   `db:"dr_decision"`
	ConflictSummary    db.JSONB   `db:"conflict_summary"`
	CorrelationID      string     `db:"correlation_id"`
	CreatedAt          time.Time  `db:"created_at"`
}

const insertSQL = `
	INSERT INTO assignment_logs (
		id, booking_id, environment_id, meeting_type, outcome,
		interpreter_emp_code, reason, pre_fairness, post_fairness,
		score_breakdown, dr_decision, conflict_summary, correlation_id, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`

// Writer appends assignment log rows. Writes are queued to a worker; when
// the insert fails the record lands in an in-memory fallback buffer that a
// flush ticker retries, so a logging failure never fails the assignment.
type Writer struct {
	db     *sqlx.DB
	logger *zap.Logger

	queue  chan Record
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	fallback []Record
}

const (
	queueDepth       = 256
	fallbackCapacity = 1024
	flushInterval    = 15 * time.Second
	drainTimeout     = 10 * time.Second
)

// NewWriter creates and starts an assignment log writer.
func NewWriter(database *sqlx.DB, logger *zap.Logger) *Writer {
	w := &Writer{
		db:     database,
		logger: logger,
		queue:  make(chan Record, queueDepth),
		stopCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.worker()
	return w
}

func (w *Writer) worker() {
	defer w.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.drain()
			return
		case rec := <-w.queue:
			w.insert(rec)
		case <-ticker.C:
			w.flushFallback()
		}
	}
}

func (w *Writer) insert(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, insertSQL,
		rec.ID, rec.BookingID, rec.EnvironmentID, rec.MeetingType, rec.Outcome,
		rec.InterpreterEmpCode, rec.Reason, rec.PreFairness, rec.PostFairness,
		rec.ScoreBreakdown, rec.DRDecision, rec.ConflictSummary, rec.CorrelationID, rec.CreatedAt,
	); err != nil {
		w.logger.Warn("Assignment log insert failed, buffering",
			zap.Int64("booking_id", rec.BookingID),
			zap.Error(err),
		)
		w.buffer(rec)
	}
}

func (w *Writer) buffer(rec Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.fallback) >= fallbackCapacity {
		// Drop the oldest entry; the fallback sink below keeps the record
		// visible in operational logs.
		dropped := w.fallback[0]
		w.fallback = w.fallback[1:]
		w.logger.Error("Assignment log fallback buffer full, dropping oldest",
			zap.Int64("booking_id", dropped.BookingID),
			zap.String("outcome", dropped.Outcome),
			zap.String("correlation_id", dropped.CorrelationID),
		)
	}
	w.fallback = append(w.fallback, rec)
	metrics.AssignmentLogBuffered.Set(float64(len(w.fallback)))
}

func (w *Writer) flushFallback() {
	w.mu.Lock()
	pending := w.fallback
	w.fallback = nil
	w.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	for _, rec := range pending {
		w.insert(rec)
	}
	w.mu.Lock()
	metrics.AssignmentLogBuffered.Set(float64(len(w.fallback)))
	w.mu.Unlock()
}

func (w *Writer) drain() {
	deadline := time.After(drainTimeout)
	for {
		select {
		case rec := <-w.queue:
			w.insert(rec)
		case <-deadline:
			w.logger.Warn("Timeout draining assignment log queue")
			return
		default:
			w.flushFallback()
			return
		}
	}
}

// Write queues a record for insertion. Never returns an error: a full queue
// falls through to the fallback buffer.
func (w *Writer) Write(rec Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	select {
	case w.queue <- rec:
	default:
		w.logger.Warn("Assignment log queue full, buffering",
			zap.Int64("booking_id", rec.BookingID))
		w.buffer(rec)
	}
}

// WriteTx inserts the record inside the caller's transaction so the decision
// row commits atomically with the assignment. The caller treats a returned
// error as degradation, not failure.
func (w *Writer) WriteTx(ctx context.Context, tx *sqlx.Tx, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, insertSQL,
		rec.ID, rec.BookingID, rec.EnvironmentID, rec.MeetingType, rec.Outcome,
		rec.InterpreterEmpCode, rec.Reason, rec.PreFairness, rec.PostFairness,
		rec.ScoreBreakdown, rec.DRDecision, rec.ConflictSummary, rec.CorrelationID, rec.CreatedAt,
	)
	return err
}

// Close drains and stops the writer.
func (w *Writer) Close() {
	close(w.stopCh)
	w.wg.Wait()
}
