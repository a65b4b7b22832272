package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const synthesisQueueKey = "synthesis_queue"

type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(redisClient *redis.Client) *RedisQueue {
	return &RedisQueue{client: redisClient}
}

// SynthesisJobMessage is the queue payload. Workers load the full job
// row from the store; the message only carries what is needed to find
// it, so a stale message after a requeue is harmless.
type SynthesisJobMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	RequestID uuid.UUID `json:"request_id"`
	UserID    int64     `json:"user_id"`
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg SynthesisJobMessage) error {
	jobData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	return q.client.LPush(ctx, synthesisQueueKey, jobData).Err()
}

// Dequeue blocks up to the poll timeout waiting for the next job, FIFO.
// Returns (nil, nil) when the timeout elapses with an empty queue.
func (q *RedisQueue) Dequeue(ctx context.Context) (*SynthesisJobMessage, error) {
	result, err := q.client.BRPop(ctx, 30*time.Second, synthesisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("invalid queue result")
	}

	var msg SynthesisJobMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	return &msg, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, synthesisQueueKey).Result()
}
