package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisListKey      = "scope3:jobs"
	redisProcessedKey = "scope3:jobs:processed"
	processedTTL      = 7 * 24 * time.Hour
)

// RedisQueue pushes jobs onto a redis list. The processed set keeps dedup
// keys around long enough for workers to skip redelivered jobs.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Open connects to redis and pings it so an unreachable server is caught at
// startup rather than on the first post-commit enqueue.
func Open(ctx context.Context, addr string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisQueue(client), nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, redisListKey, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	data, err := q.client.RPop(ctx, redisListKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	// Skip jobs whose dedup key was already processed.
	seen, err := q.client.SIsMember(ctx, redisProcessedKey, job.DedupKey).Result()
	if err == nil && seen {
		return q.Dequeue(ctx)
	}
	return &job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if err := q.client.SAdd(ctx, redisProcessedKey, job.DedupKey).Err(); err != nil {
		return err
	}
	return q.client.Expire(ctx, redisProcessedKey, processedTTL).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
