package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
)

func newTestRedisLocker(t *testing.T) (*RedisRunLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRunLockerWithClient(client, ""), mr
}

func TestRedisRunLocker_Acquire(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire fails while held", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)

		lease, err := locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
		require.NoError(t, err)
		assert.True(t, mr.Exists(defaultRunLockPrefix+"naver"))

		_, err = locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
		assert.ErrorIs(t, err, integration.ErrSyncInProgress)

		_, err = locker.Acquire(ctx, integration.ChannelCoupang, time.Minute)
		assert.NoError(t, err, "channels lock independently")

		require.NoError(t, lease.Release(ctx))
		assert.False(t, mr.Exists(defaultRunLockPrefix+"naver"))

		_, err = locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
		assert.NoError(t, err)
	})

	t.Run("expired lock can be taken over", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)

		stale, err := locker.Acquire(ctx, integration.ChannelNaver, time.Second)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)

		lease, err := locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Extend(ctx, time.Minute), ErrLockNotHeld)
		assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
		assert.True(t, mr.Exists(defaultRunLockPrefix+"naver"), "stale release must not drop the new holder's lock")
		assert.NoError(t, lease.Release(ctx))
	})

	t.Run("extend keeps the lock past its first ttl", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)

		lease, err := locker.Acquire(ctx, integration.ChannelNaver, 2*time.Second)
		require.NoError(t, err)

		mr.FastForward(time.Second)
		require.NoError(t, lease.Extend(ctx, 10*time.Second))
		assert.Equal(t, 10*time.Second, mr.TTL(defaultRunLockPrefix+"naver"))

		mr.FastForward(5 * time.Second)
		_, err = locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
		assert.ErrorIs(t, err, integration.ErrSyncInProgress)

		require.NoError(t, lease.Release(ctx))
		assert.ErrorIs(t, lease.Extend(ctx, time.Minute), ErrLockNotHeld, "released lease cannot be revived")
		assert.False(t, mr.Exists(defaultRunLockPrefix+"naver"))
	})

	t.Run("redis unavailable", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)
		mr.Close()

		_, err := locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
		require.Error(t, err)
		assert.NotErrorIs(t, err, integration.ErrSyncInProgress)
	})
}

func TestInMemoryRunLocker_Acquire(t *testing.T) {
	ctx := context.Background()
	locker := NewInMemoryRunLocker()
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	lease, err := locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
	require.NoError(t, err)
	assert.True(t, locker.Held(integration.ChannelNaver))

	_, err = locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)

	now = now.Add(2 * time.Minute)
	assert.False(t, locker.Held(integration.ChannelNaver))

	takeover, err := locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, lease.Extend(ctx, time.Minute), ErrLockNotHeld)
	assert.True(t, locker.Held(integration.ChannelNaver))

	require.NoError(t, takeover.Release(ctx))
	assert.False(t, locker.Held(integration.ChannelNaver))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = locker.Acquire(cancelled, integration.ChannelNaver, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryRunLocker_Extend(t *testing.T) {
	ctx := context.Background()
	locker := NewInMemoryRunLocker()
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	lease, err := locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	require.NoError(t, lease.Extend(ctx, time.Minute))

	now = now.Add(50 * time.Second)
	assert.True(t, locker.Held(integration.ChannelNaver), "extended lease outlives the first ttl")
	_, err = locker.Acquire(ctx, integration.ChannelNaver, time.Minute)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, lease.Extend(ctx, time.Minute), ErrLockNotHeld, "lapsed lease cannot be extended")
	assert.False(t, locker.Held(integration.ChannelNaver))
}

func TestRunLockerFactory_CreateLocker(t *testing.T) {
	t.Run("no host uses in-memory", func(t *testing.T) {
		locker, err := NewRunLockerFactory(config.RedisConfig{}).CreateLocker()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryRunLocker{}, locker)
	})

	t.Run("no host without fallback fails", func(t *testing.T) {
		_, err := NewRunLockerFactory(config.RedisConfig{}, WithInMemoryFallback(false)).CreateLocker()
		assert.Error(t, err)
	})

	t.Run("reachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}
		locker, err := NewRunLockerFactory(cfg).CreateLocker()
		require.NoError(t, err)
		require.IsType(t, &RedisRunLocker{}, locker)
		_ = locker.(*RedisRunLocker).Close()
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}
		mr.Close()

		locker, err := NewRunLockerFactory(cfg).CreateLocker()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryRunLocker{}, locker)

		_, err = NewRunLockerFactory(cfg, WithInMemoryFallback(false)).CreateLocker()
		assert.Error(t, err)
	})
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	var port int
	_, err := fmt.Sscanf(mr.Port(), "%d", &port)
	require.NoError(t, err)
	return port
}
