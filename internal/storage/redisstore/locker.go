package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/exchangebot/core/logger"
)

const lockPrefix = "lock:quota:"

// LockObserver records lock acquisition results and latency.
type LockObserver interface {
	ObserveLock(ok bool, took time.Duration)
}

// Locker is a quota.Locker backed by redsync mutexes.
type Locker struct {
	rs       *redsync.Redsync
	expiry   time.Duration
	tries    int
	observer LockObserver
}

// NewLocker builds a redsync pool on rdb. expiry bounds how long a crashed
// holder can block the user.
func NewLocker(rdb redis.UniversalClient, expiry time.Duration, obs LockObserver) *Locker {
	if expiry <= 0 {
		expiry = 5 * time.Second
	}
	return &Locker{
		rs:       redsync.New(goredis.NewPool(rdb)),
		expiry:   expiry,
		tries:    8,
		observer: obs,
	}
}

// Lock acquires lock:quota:<userID>. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, userID int64) (func(), error) {
	m := l.rs.NewMutex(lockPrefix+strconv.FormatInt(userID, 10),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	start := time.Now()
	err := m.LockContext(ctx)
	if l.observer != nil {
		l.observer.ObserveLock(err == nil, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("acquire quota lock: %w", err)
	}
	return func() {
		if _, err := m.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			logger.Redis.Warn("quota lock release failed",
				slog.String("event", "lock.release"),
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	}, nil
}
