package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

// RedisRecomputeQueue реализует очередь задач на базе Redis lists.
type RedisRecomputeQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRecomputeQueue создаёт очередь по указанному ключу.
func NewRedisRecomputeQueue(client *redis.Client, key string) *RedisRecomputeQueue {
	return &RedisRecomputeQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRecomputeQueue) Enqueue(ctx context.Context, job domain.RecomputeJob) error {
	job = withJobID(job)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
// Ack с success=false кладёт задачу обратно в очередь.
func (q *RedisRecomputeQueue) Receive(ctx context.Context) (domain.RecomputeJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RecomputeJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RecomputeJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RecomputeJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RecomputeJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.RecomputeJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.RecomputeJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.requeueAck(res[1]), nil
	}
}

func (q *RedisRecomputeQueue) requeueAck(payload string) domain.AckFunc {
	return func(success bool) error {
		if success {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		err := q.client.LPush(ctx, q.key, payload).Err()
		metrics.ObserveNetworkRequest("redis", "requeue", q.key, start, err)
		return err
	}
}

func withJobID(job domain.RecomputeJob) domain.RecomputeJob {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	return job
}
