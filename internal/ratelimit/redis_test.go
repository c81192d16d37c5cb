package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	redisOnce    sync.Once
	redisInitErr error
	redisURL     string
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcredis.Run(ctx, "redis:7-alpine",
			testcontainers.WithReuseByName("jobboard-ratelimit-redis"),
		)
		if err != nil {
			redisInitErr = err
			return
		}
		redisURL, redisInitErr = container.ConnectionString(ctx)
	})
	require.NoError(t, redisInitErr)

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiterBlocksAfterMax(t *testing.T) {
	client := setupRedis(t)
	l := NewRedisLimiter(client, time.Minute, 3, false)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), d.ResetAt, 2*time.Second)

	ttl, err := client.PTTL(ctx, redisKeyPrefix+"10.0.0.1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	client := setupRedis(t)
	l := NewRedisLimiter(client, 200*time.Millisecond, 1, false)
	ctx := context.Background()

	d, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.Eventually(t, func() bool {
		d, err := l.Allow(ctx, "a")
		return err == nil && d.Allowed
	}, 3*time.Second, 100*time.Millisecond)
}

func TestRedisLimiterSharedAcrossInstances(t *testing.T) {
	client := setupRedis(t)
	first := NewRedisLimiter(client, time.Minute, 2, false)
	second := NewRedisLimiter(client, time.Minute, 2, false)
	ctx := context.Background()

	_, err := first.Allow(ctx, "shared")
	require.NoError(t, err)
	_, err = second.Allow(ctx, "shared")
	require.NoError(t, err)

	d, err := first.Allow(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRedisLimiterReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewRedisLimiter(client, time.Minute, 1, true)
	defer l.Close()

	_, err := l.Allow(context.Background(), "a")
	assert.Error(t, err)
}
