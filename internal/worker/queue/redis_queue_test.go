package queue

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

// These run against a real server: REDIS_TEST_ADDR=localhost:6379.
func testQueue(t *testing.T) *RedisQueue {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewRedisQueue(rdb, "posprint:test:"+uuid.NewString())
	require.NoError(t, q.Ping(context.Background()))
	t.Cleanup(func() { _, _ = q.Purge(context.Background()) })
	return q
}

func TestRedisQueueFIFO(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, []byte{0x1B, 0x40, 0x00}))
	require.NoError(t, q.Push(ctx, []byte("second")))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1B, 0x40, 0x00}, first)

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), second)
}

func TestRedisQueuePopTimeout(t *testing.T) {
	q := testQueue(t)

	got, err := q.Pop(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisQueuePurge(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, []byte("x")))
	}
	dropped, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, dropped)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
