package locker

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/payment-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func TestLocker_AcquireRelease(t *testing.T) {
	_, adapter := setupTestRedis(t)
	locker := NewLocker(adapter, DefaultConfig())

	lock, err := locker.Acquire("order_abc")
	require.NoError(t, err)
	require.NotNil(t, lock)

	t.Run("second acquire on same order is rejected", func(t *testing.T) {
		_, err := locker.Acquire("order_abc")
		assert.ErrorIs(t, err, ErrLockHeld)
	})

	t.Run("different order is independent", func(t *testing.T) {
		other, err := locker.Acquire("order_def")
		require.NoError(t, err)
		require.NoError(t, locker.Release(other))
	})

	t.Run("release frees the order", func(t *testing.T) {
		require.NoError(t, locker.Release(lock))

		again, err := locker.Acquire("order_abc")
		require.NoError(t, err)
		require.NoError(t, locker.Release(again))
	})

	t.Run("double release is a no-op", func(t *testing.T) {
		assert.NoError(t, locker.Release(lock))
		assert.NoError(t, locker.Release(nil))
	})
}

func TestLocker_TTLExpiry(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	locker := NewLocker(adapter, Config{LockTTL: time.Second})

	_, err := locker.Acquire("order_ttl")
	require.NoError(t, err)

	_, err = locker.Acquire("order_ttl")
	require.ErrorIs(t, err, ErrLockHeld)

	// A crashed holder must not block verification forever.
	mr.FastForward(2 * time.Second)

	lock, err := locker.Acquire("order_ttl")
	require.NoError(t, err)
	require.NoError(t, locker.Release(lock))
}
