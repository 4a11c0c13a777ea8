package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a checker's reported state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one check execution's outcome.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Checker is a single health probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	IsCritical() bool
}

// Manager runs registered checkers on an interval and aggregates results.
type Manager struct {
	checkers      []Checker
	lastResults   map[string]CheckResult
	checkInterval time.Duration
	timeout       time.Duration
	stopCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewManager creates a health manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		lastResults:   make(map[string]CheckResult),
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Second,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// RegisterChecker adds a health check.
func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.Info("Health checker registered",
		zap.String("checker", c.Name()),
		zap.Bool("critical", c.IsCritical()),
	)
}

// Start runs the background check loop until the context ends.
func (m *Manager) Start(ctx context.Context) {
	m.runAll(ctx)
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runAll(ctx)
		}
	}
}

// Stop ends the background loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) runAll(ctx context.Context) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		result := c.Check(checkCtx)
		cancel()

		m.mu.Lock()
		m.lastResults[c.Name()] = result
		m.mu.Unlock()

		if result.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("checker", c.Name()),
				zap.String("status", string(result.Status)),
				zap.String("message", result.Message),
			)
		}
	}
}

// Snapshot returns the latest results plus the aggregate status. The
// aggregate is unhealthy only when a critical checker is unhealthy.
func (m *Manager) Snapshot() (Status, map[string]CheckResult) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]CheckResult, len(m.lastResults))
	for k, v := range m.lastResults {
		results[k] = v
	}

	overall := StatusHealthy
	for _, c := range m.checkers {
		r, ok := m.lastResults[c.Name()]
		if !ok {
			continue
		}
		if r.Status == StatusUnhealthy && c.IsCritical() {
			return StatusUnhealthy, results
		}
		if r.Status != StatusHealthy {
			overall = StatusDegraded
		}
	}
	return overall, results
}
