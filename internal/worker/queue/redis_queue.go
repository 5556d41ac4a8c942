// Package queue carries encoded print payloads between the API host and a
// relay agent through a Redis list.
package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"posprint/internal/pkg/errors"
)

// RedisQueue is a FIFO of raw byte payloads: Push adds on the left, Pop
// takes from the right.
type RedisQueue struct {
	rdb       redis.Cmdable
	queueName string
}

func NewRedisQueue(rdb redis.Cmdable, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	if err := q.rdb.LPush(ctx, q.queueName, payload).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.Push", "redis push failed")
	}
	return nil
}

// Pop blocks up to timeout (BRPOP) and returns nil, nil when nothing
// arrived in time.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.Pop", "redis pop failed")
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.queueName).Result()
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.Len", "redis llen failed")
	}
	return n, nil
}

// Purge drops every pending payload and reports how many there were.
func (q *RedisQueue) Purge(ctx context.Context) (int64, error) {
	pipe := q.rdb.TxPipeline()
	llen := pipe.LLen(ctx, q.queueName)
	pipe.Del(ctx, q.queueName)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.Purge", "redis purge failed")
	}
	return llen.Val(), nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
