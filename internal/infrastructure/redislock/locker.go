// Package redislock implements the per-key mutual exclusion guarding the
// idempotency check, backed by Redis via redsync. Locks are scoped to one
// key, carry a short TTL so a crashed holder cannot wedge the key, and are
// released on every exit path.
package redislock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/relaypoint/partner-hub/internal/application"
)

type Locker struct {
	rs     *redsync.Redsync
	ttl    time.Duration
	logger *slog.Logger
}

func NewLocker(client *goredislib.Client, ttl time.Duration, logger *slog.Logger) *Locker {
	pool := goredis.NewPool(client)
	return &Locker{
		rs:     redsync.New(pool),
		ttl:    ttl,
		logger: logger,
	}
}

var _ application.KeyLocker = (*Locker)(nil)

// WithLock runs fn while holding the mutex for key. Acquisition failure is
// reported as application.ErrLockNotAcquired so callers treat it as a
// transient fault instead of proceeding unguarded.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(3),
		redsync.WithRetryDelay(100*time.Millisecond),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", application.ErrLockNotAcquired, key, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			// The TTL will reclaim the lock; nothing else to do here.
			l.logger.Warn("failed to release idempotency lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}
