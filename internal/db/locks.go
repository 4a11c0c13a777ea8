package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

// ErrLockTimeout is returned when a named lock could not be acquired
// within the caller's deadline.
var ErrLockTimeout = errors.New("named lock acquisition timed out")

// lockPollInterval is how often a blocked acquirer re-tries the advisory lock.
const lockPollInterval = 100 * time.Millisecond

// NamedLock is a session-scoped advisory lock pinned to one connection.
// The lock is held until Release is called or the connection drops.
type NamedLock struct {
	conn   *sql.Conn
	name   string
	logger *zap.Logger
}

// AcquireNamedLock takes the advisory lock derived from name, polling until
// timeout. Returns a domain LOCK_TIMEOUT error when the lock is contended
// past the deadline.
func (c *Client) AcquireNamedLock(ctx context.Context, name string, timeout time.Duration) (*NamedLock, error) {
	conn, err := c.db.DB.Conn(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.CodeInternal, "acquire lock connection", err)
	}

	deadline := time.Now().Add(timeout)
	start := time.Now()
	for {
		var acquired bool
		err := conn.QueryRowContext(ctx,
			`SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, name,
		).Scan(&acquired)
		if err != nil {
			conn.Close()
			return nil, domain.WrapError(domain.CodeInternal, "advisory lock query", err)
		}
		if acquired {
			c.logger.Debug("Named lock acquired",
				zap.String("lock", name),
				zap.Duration("wait", time.Since(start)),
			)
			return &NamedLock{conn: conn, name: name, logger: c.logger}, nil
		}

		if time.Now().After(deadline) {
			conn.Close()
			return nil, domain.WrapError(domain.CodeLockTimeout, "lock "+name, ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			conn.Close()
			return nil, domain.WrapError(domain.CodeLockTimeout, "lock "+name, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

// Release unlocks and returns the pinned connection to the pool.
func (l *NamedLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()

	var released bool
	if err := l.conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock(hashtextextended($1, 0))`, l.name,
	).Scan(&released); err != nil {
		return err
	}
	if !released {
		l.logger.Warn("Advisory unlock reported no lock held", zap.String("lock", l.name))
	}
	return nil
}
