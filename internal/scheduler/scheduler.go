package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bookinghub/interpreter-assignment/internal/assign"
	"github.com/bookinghub/interpreter-assignment/internal/domain"
	"github.com/bookinghub/interpreter-assignment/internal/metrics"
	"github.com/bookinghub/interpreter-assignment/internal/pool"
)

// Pass kinds.
const (
	PassKindTick   = "tick"
	PassKindManual = "manual"
)

const lastPassKey = "assign:scheduler:last_pass"

// Config holds scheduler tuning.
type Config struct {
	TickInterval    time.Duration // default 45s
	Horizon         time.Duration // default 90 days
	Workers         int           // default 4
	MaxAttempts     int           // default 3
	DispatchPerSec  float64       // default 5
	RecoveryCron    string        // default "*/10 * * * *"
	StuckOlderThan  time.Duration // default 1h
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 45 * time.Second
	}
	if c.Horizon <= 0 {
		c.Horizon = 90 * 24 * time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.DispatchPerSec <= 0 {
		c.DispatchPerSec = 5
	}
	if c.RecoveryCron == "" {
		c.RecoveryCron = "*/10 * * * *"
	}
	if c.StuckOlderThan <= 0 {
		c.StuckOlderThan = time.Hour
	}
}

// Dispatcher runs one end-to-end assignment.
type Dispatcher interface {
	Assign(ctx context.Context, bookingID int64) (assign.Outcome, error)
}

// EntrySource feeds ready pool entries and tracks dispatch bookkeeping.
type EntrySource interface {
	Ready(ctx context.Context, now time.Time, horizon time.Duration) ([]pool.Entry, error)
	MarkProcessing(ctx context.Context, bookingID int64) (bool, error)
	FailAttempt(ctx context.Context, bookingID int64, maxAttempts int) error
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	ClearTerminal(ctx context.Context) (int64, error)
}

// PassResult summarizes one scheduler pass.
type PassResult struct {
	Kind       string
	Candidates int
	Dispatched int
	Assigned   int
	Skipped    int
	Escalated  int
	Failed     int
}

// Scheduler drives periodic assignment passes. At most one pass runs at a
// time; each pass claims entries through the pool and hands them to a small
// fixed worker set.
type Scheduler struct {
	cfg        Config
	entries    EntrySource
	dispatcher Dispatcher
	redis      *redis.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	cron       *cron.Cron

	passMu sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup

	nowFn func() time.Time
}

// New creates a scheduler. The redis client may be nil; the last-pass stamp
// is then not recorded and LastPass reports the zero time.
func New(cfg Config, entries EntrySource, dispatcher Dispatcher, rdb *redis.Client, logger *zap.Logger) (*Scheduler, error) {
	cfg.applyDefaults()

	s := &Scheduler{
		cfg:        cfg,
		entries:    entries,
		dispatcher: dispatcher,
		redis:      rdb,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(cfg.DispatchPerSec), 1),
		stopCh:     make(chan struct{}),
		nowFn:      time.Now,
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.RecoveryCron, s.recoverySweep); err != nil {
		return nil, fmt.Errorf("invalid recovery cron %q: %w", cfg.RecoveryCron, err)
	}
	s.cron = c
	return s, nil
}

// Start launches the tick loop and the recovery cron.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.wg.Add(1)
	go s.tickLoop(ctx)
	s.logger.Info("Assignment scheduler started",
		zap.Duration("tick", s.cfg.TickInterval),
		zap.Int("workers", s.cfg.Workers),
	)
}

// Stop halts ticking and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
	s.logger.Info("Assignment scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunPass(ctx, PassKindTick); err != nil {
				s.logger.Error("Scheduler pass failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) recoverySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.entries.RecoverStuck(ctx, s.cfg.StuckOlderThan); err != nil {
		s.logger.Error("Pool stuck recovery failed", zap.Error(err))
	}
	if _, err := s.entries.ClearTerminal(ctx); err != nil {
		s.logger.Error("Pool terminal cleanup failed", zap.Error(err))
	}
}

// RunPass executes one bounded pass. A pass already in flight makes this
// call a no-op returning a zero result.
func (s *Scheduler) RunPass(ctx context.Context, kind string) (PassResult, error) {
	if !s.passMu.TryLock() {
		s.logger.Debug("Scheduler pass already running, skipping", zap.String("kind", kind))
		return PassResult{Kind: kind}, nil
	}
	defer s.passMu.Unlock()

	metrics.SchedulerPasses.WithLabelValues(kind).Inc()
	now := s.nowFn()
	result := PassResult{Kind: kind}

	entries, err := s.entries.Ready(ctx, now, s.cfg.Horizon)
	if err != nil {
		return result, err
	}
	result.Candidates = len(entries)
	if len(entries) == 0 {
		s.stampLastPass(ctx, now)
		return result, nil
	}

	// Claim first, then dispatch the claimed set on the worker pool.
	claimed := make([]int64, 0, len(entries))
	for _, e := range entries {
		won, err := s.entries.MarkProcessing(ctx, e.BookingID)
		if err != nil {
			s.logger.Error("Pool claim failed",
				zap.Int64("booking_id", e.BookingID), zap.Error(err))
			continue
		}
		if won {
			claimed = append(claimed, e.BookingID)
		}
	}

	type dispatchResult struct {
		status string
	}
	jobs := make(chan int64)
	results := make(chan dispatchResult, len(claimed))
	var workerWg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for bookingID := range jobs {
				results <- dispatchResult{status: s.dispatch(ctx, bookingID)}
			}
		}()
	}

	for _, id := range claimed {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		jobs <- id
	}
	close(jobs)
	workerWg.Wait()
	close(results)

	for r := range results {
		result.Dispatched++
		switch r.status {
		case assign.OutcomeAssigned:
			result.Assigned++
		case assign.OutcomeSkipped:
			result.Skipped++
		case assign.OutcomeEscalated:
			result.Escalated++
		default:
			result.Failed++
		}
		metrics.SchedulerDispatches.WithLabelValues(r.status).Inc()
	}

	s.stampLastPass(ctx, now)
	s.logger.Info("Scheduler pass complete",
		zap.String("kind", kind),
		zap.Int("candidates", result.Candidates),
		zap.Int("dispatched", result.Dispatched),
		zap.Int("assigned", result.Assigned),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// dispatch runs one assignment and applies pool bookkeeping for the outcome.
// Transient failures get one in-pass retry before deferring to the next pass.
func (s *Scheduler) dispatch(ctx context.Context, bookingID int64) string {
	var outcome assign.Outcome
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		outcome, err = s.dispatcher.Assign(ctx, bookingID)
		if err == nil {
			return outcome.Status
		}
		if !domain.IsTransient(err) {
			break
		}
		s.logger.Warn("Transient dispatch failure",
			zap.Int64("booking_id", bookingID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	if domain.IsTransient(err) {
		if ferr := s.entries.FailAttempt(ctx, bookingID, s.cfg.MaxAttempts); ferr != nil {
			s.logger.Error("Pool fail-attempt bookkeeping failed",
				zap.Int64("booking_id", bookingID), zap.Error(ferr))
		}
		return "transient"
	}

	s.logger.Error("Dispatch failed",
		zap.Int64("booking_id", bookingID),
		zap.Error(err),
	)
	if ferr := s.entries.FailAttempt(ctx, bookingID, s.cfg.MaxAttempts); ferr != nil {
		s.logger.Error("Pool fail-attempt bookkeeping failed",
			zap.Int64("booking_id", bookingID), zap.Error(ferr))
	}
	return "failed"
}

// LastPass returns the recorded last pass time, zero when unknown.
func (s *Scheduler) LastPass(ctx context.Context) time.Time {
	if s.redis == nil {
		return time.Time{}
	}
	val, err := s.redis.Get(ctx, lastPassKey).Result()
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Scheduler) stampLastPass(ctx context.Context, now time.Time) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, lastPassKey, now.Format(time.RFC3339Nano), 0).Err(); err != nil {
		s.logger.Debug("Last-pass stamp failed", zap.Error(err))
	}
}
