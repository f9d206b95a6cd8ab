package quota

import (
	"context"
	"time"

	"github.com/aprovia/aprovia-backend/pkg/redis"
)

const lockScope = "entitlement"

// Lease is a held per-user decision lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes the read-decide-increment sequence for one user across
// instances.
type Locker interface {
	Acquire(ctx context.Context, userID string) (Lease, error)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker adapts the shared redis client into a decision locker.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl, wait: wait}
}

func (l *redisLocker) Acquire(ctx context.Context, userID string) (Lease, error) {
	lock, err := l.client.AcquireLock(ctx, lockScope, userID, l.ttl, l.wait)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
