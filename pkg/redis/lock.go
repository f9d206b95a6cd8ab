package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the lock is owned by another caller and the
// wait budget ran out.
var ErrLockHeld = errors.New("lock held by another caller")

const lockRetryInterval = 25 * time.Millisecond

// Owner-checked release: only the holder that set the token may delete.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Lock is a single-holder lease on a redis key.
type Lock struct {
	client *Client
	key    string
	token  string
}

// AcquireLock takes a per-scope lease, retrying until wait elapses. The quota
// decision path locks on the user id so the read-decide-increment sequence for
// one user is serialized across instances.
func (c *Client) AcquireLock(ctx context.Context, scope, id string, ttl, wait time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	key := c.LockKey(scope, id)
	token := uuid.NewString()

	deadline := time.Now().Add(wait)
	for {
		ok, err := c.SetNX(ctx, key, token, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{client: c, key: key, token: token}, nil
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release frees the lease if this holder still owns it. Releasing an expired
// or stolen lease is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	_, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token)
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	return nil
}
