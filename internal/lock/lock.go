// Package lock provides the distributed mutual exclusion used to guarantee a
// single in-flight payroll run per period across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ProcessingTTL bounds how long a crashed holder can block a period.
const ProcessingTTL = time.Hour

// Locker acquires and releases named locks.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker on top of redislock. Each instance tracks the
// tokens it obtained, so two instances contend like two processes would.
type RedisLocker struct {
	client *redislock.Client

	mu   sync.Mutex
	held map[string]*redislock.Lock
}

// NewRedisLocker constructs a locker backed by the redis client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		held:   make(map[string]*redislock.Lock),
	}
}

// TryAcquire sets key atomically when absent. It returns false without error
// when another holder owns the key.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = ProcessingTTL
	}
	obtained, err := l.client.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return false, nil
		}
		return false, fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	l.mu.Lock()
	l.held[key] = obtained
	l.mu.Unlock()
	return true, nil
}

// Release drops the lock when this instance holds it. Releasing an unknown,
// expired or foreign key is a no-op.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	obtained, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := obtained.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}
