package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything with a context ping (the database client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker probes storage connectivity.
type DatabaseChecker struct {
	pinger Pinger
}

// NewDatabaseChecker creates a database health checker.
func NewDatabaseChecker(p Pinger) *DatabaseChecker {
	return &DatabaseChecker{pinger: p}
}

func (c *DatabaseChecker) Name() string     { return "database" }
func (c *DatabaseChecker) IsCritical() bool { return true }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Status: StatusHealthy, CheckedAt: start}
	if err := c.pinger.Ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}

// RedisChecker probes the cache. The cache is not authoritative, so a
// failure degrades instead of failing readiness.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string     { return "redis" }
func (c *RedisChecker) IsCritical() bool { return false }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Status: StatusHealthy, CheckedAt: start}
	if c.client == nil {
		result.Status = StatusDegraded
		result.Message = "cache disabled"
	} else if err := c.client.Ping(ctx).Err(); err != nil {
		result.Status = StatusDegraded
		result.Message = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}

// PassSource reports when the scheduler last completed a pass.
type PassSource interface {
	LastPass(ctx context.Context) time.Time
}

// SchedulerChecker flags a scheduler that has stopped passing.
type SchedulerChecker struct {
	source  PassSource
	maxAge  time.Duration
}

// NewSchedulerChecker creates a scheduler liveness checker.
func NewSchedulerChecker(source PassSource, maxAge time.Duration) *SchedulerChecker {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &SchedulerChecker{source: source, maxAge: maxAge}
}

func (c *SchedulerChecker) Name() string     { return "scheduler" }
func (c *SchedulerChecker) IsCritical() bool { return false }

func (c *SchedulerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Status: StatusHealthy, CheckedAt: start}
	last := c.source.LastPass(ctx)
	switch {
	case last.IsZero():
		result.Status = StatusDegraded
		result.Message = "no pass recorded yet"
	case time.Since(last) > c.maxAge:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("last pass %s ago", time.Since(last).Round(time.Second))
	}
	result.Duration = time.Since(start)
	return result
}
