package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testSession(subject string) *Session {
	return &Session{
		Subject:   subject,
		Status:    StatusOpen,
		PublicKey: "BASE64KEY",
		KeyType:   "EC",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// storeUnderTest runs the shared Store contract tests against any backend.
func storeUnderTest(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("fetch unknown subject", func(t *testing.T) {
		_, err := store.Fetch(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("store and fetch", func(t *testing.T) {
		s := testSession("subject-1")
		require.NoError(t, store.Store(ctx, s))

		got, err := store.Fetch(ctx, "subject-1")
		require.NoError(t, err)
		require.Equal(t, StatusOpen, got.Status)
		require.Equal(t, "BASE64KEY", got.PublicKey)
		require.Equal(t, "EC", got.KeyType)
	})

	t.Run("update transitions to ready", func(t *testing.T) {
		s := testSession("subject-2")
		require.NoError(t, store.Store(ctx, s))

		s.Status = StatusReady
		s.ResultToken = "signed.result.token"
		require.NoError(t, store.Update(ctx, s))

		got, err := store.Fetch(ctx, "subject-2")
		require.NoError(t, err)
		require.Equal(t, StatusReady, got.Status)
		require.Equal(t, "signed.result.token", got.ResultToken)
	})

	t.Run("update is a one-time transition", func(t *testing.T) {
		s := testSession("subject-4")
		require.NoError(t, store.Store(ctx, s))

		s.Status = StatusReady
		s.ResultToken = "first.result.token"
		require.NoError(t, store.Update(ctx, s))

		s.ResultToken = "second.result.token"
		require.ErrorIs(t, store.Update(ctx, s), ErrConsumed)

		got, err := store.Fetch(ctx, "subject-4")
		require.NoError(t, err)
		require.Equal(t, "first.result.token", got.ResultToken)
	})

	t.Run("update without a stored session", func(t *testing.T) {
		s := testSession("never-stored")
		s.Status = StatusReady
		require.ErrorIs(t, store.Update(ctx, s), ErrNotFound)
	})

	t.Run("store reopens a consumed subject", func(t *testing.T) {
		s := testSession("subject-5")
		require.NoError(t, store.Store(ctx, s))

		s.Status = StatusReady
		s.ResultToken = "signed.result.token"
		require.NoError(t, store.Update(ctx, s))

		// a fresh init overwrites unconditionally and resets the lifecycle
		fresh := testSession("subject-5")
		require.NoError(t, store.Store(ctx, fresh))
		require.NoError(t, store.Update(ctx, s))
	})

	t.Run("store overwrites", func(t *testing.T) {
		s := testSession("subject-3")
		require.NoError(t, store.Store(ctx, s))

		s.PublicKey = "NEWKEY"
		require.NoError(t, store.Store(ctx, s))

		got, err := store.Fetch(ctx, "subject-3")
		require.NoError(t, err)
		require.Equal(t, "NEWKEY", got.PublicKey)
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestMemoryStoreConcurrentUpdateSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, testSession("contested")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := testSession("contested")
			s.Status = StatusReady
			s.ResultToken = fmt.Sprintf("token-%d", i)
			if err := store.Update(ctx, s); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testSession("short")
	s.ExpiresAt = time.Now().Add(10 * time.Millisecond)
	require.NoError(t, store.Store(ctx, s))

	time.Sleep(20 * time.Millisecond)

	_, err := store.Fetch(ctx, "short")
	require.ErrorIs(t, err, ErrNotFound)
}

func testRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := NewRedisStore(client, []byte("test-signing-key-material"))
	require.NoError(t, err)
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, _ := testRedisStore(t)
	storeUnderTest(t, store)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := testRedisStore(t)
	ctx := context.Background()

	s := testSession("short")
	s.ExpiresAt = time.Now().Add(time.Minute)
	require.NoError(t, store.Store(ctx, s))

	mr.FastForward(2 * time.Minute)

	_, err := store.Fetch(ctx, "short")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreEncryptsAtRest(t *testing.T) {
	store, mr := testRedisStore(t)
	ctx := context.Background()

	s := testSession("subject-1")
	require.NoError(t, store.Store(ctx, s))

	raw, err := mr.Get(redisKeyPrefix + "subject-1")
	require.NoError(t, err)
	require.NotContains(t, raw, "BASE64KEY", "session payload must not be readable in redis")
	require.NotContains(t, raw, "subject-1")
}

func TestRedisStoreRejectsTamperedPayload(t *testing.T) {
	store, mr := testRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, testSession("subject-1")))

	raw, err := mr.Get(redisKeyPrefix + "subject-1")
	require.NoError(t, err)
	tampered := []byte(raw)
	tampered[0] ^= 0xff
	require.NoError(t, mr.Set(redisKeyPrefix+"subject-1", string(tampered)))

	_, err = store.Fetch(ctx, "subject-1")
	require.Error(t, err)
}

func TestRedisStoreKeyMaterialRequired(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	_, err := NewRedisStore(client, nil)
	require.Error(t, err)
}

func TestRedisStoreRejectsExpiredSession(t *testing.T) {
	store, _ := testRedisStore(t)

	s := testSession("expired")
	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.Error(t, store.Store(context.Background(), s))
}
