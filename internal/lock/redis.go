package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:job:"

// releaseScript deletes the lock only if it is still held by the caller's
// token, so a lease that expired and was re-acquired by another node is
// never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements the cluster-wide lock as SET NX PX with a random
// holder token. minHold delays release so two nodes with skewed timers do
// not run the same job back to back within one tick.
type RedisLocker struct {
	client  *redis.Client
	minHold time.Duration
}

func NewRedisLocker(client *redis.Client, minHold time.Duration) *RedisLocker {
	return &RedisLocker{client: client, minHold: minHold}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, maxHold time.Duration) (Lease, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKeyPrefix+name, token, maxHold).Result()
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &redisLease{
		locker:     l,
		key:        lockKeyPrefix + name,
		token:      token,
		acquiredAt: time.Now(),
	}, nil
}

type redisLease struct {
	locker     *RedisLocker
	key        string
	token      string
	acquiredAt time.Time
}

func (r *redisLease) Release(ctx context.Context) error {
	// hold the lock for at least minHold even when the job finished early
	if held := time.Since(r.acquiredAt); held < r.locker.minHold {
		select {
		case <-time.After(r.locker.minHold - held):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}
