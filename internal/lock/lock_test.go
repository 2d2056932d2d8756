package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	// independent names do not contend
	other, err := l.Acquire(ctx, "rule-sync", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "trust-sync", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// the lease expired, another holder may take over
	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)

	// the stale holder's release must not free the new lease
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
}

func testRedisLocker(t *testing.T, minHold time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, minHold), mr
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	l, _ := testRedisLocker(t, 0)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lease.Release(ctx))

	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)
}

func TestRedisLockerStaleReleaseIsNoop(t *testing.T) {
	l, mr := testRedisLocker(t, 0)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)

	// the lease TTL elapses and another node takes the lock
	mr.FastForward(2 * time.Minute)
	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)

	// the stale holder releases: the new lease must survive
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "trust-sync", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedisLockerMinHold(t *testing.T) {
	l, _ := testRedisLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "trust-sync", time.Minute)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, lease.Release(ctx))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
