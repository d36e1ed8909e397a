package redislock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = New(client, WithTTL(10*time.Millisecond))
	assert.Error(t, err)

	l, err := New(client)
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, l.key)
}

func TestTryLock_Exclusive(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := "test:sweeper:" + uuid.NewString()

	a, err := New(client, WithKey(key), WithTTL(3*time.Second))
	require.NoError(t, err)
	b, err := New(client, WithKey(key), WithTTL(3*time.Second))
	require.NoError(t, err)

	unlock, ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()

	unlockB, ok, err := b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	unlockB()

	n, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTryLock_ReleaseKeepsForeignToken(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := "test:sweeper:" + uuid.NewString()

	l, err := New(client, WithKey(key), WithTTL(3*time.Second))
	require.NoError(t, err)
	unlock, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry followed by another holder.
	require.NoError(t, client.Set(ctx, key, "other", time.Minute).Err())
	unlock()

	val, err := client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other", val)
	require.NoError(t, client.Del(ctx, key).Err())
}
