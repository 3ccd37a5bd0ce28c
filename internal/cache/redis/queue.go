package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pointline/pointline/internal/domain"
)

// JobQueue implements domain.JobQueue on a Redis list. Producers LPUSH job
// ids; workers block on BRPOP. Delivery is at-least-once — the settlement
// coordinator is idempotent per job id, and the poll path covers the case
// where the queue loses a message entirely.
type JobQueue struct {
	rdb *redis.Client
	key string
}

// NewJobQueue creates a JobQueue on the given list key.
func NewJobQueue(c *Client, key string) *JobQueue {
	return &JobQueue{rdb: c.Underlying(), key: key}
}

// Enqueue pushes a job id onto the queue.
func (q *JobQueue) Enqueue(ctx context.Context, jobID int64) error {
	if err := q.rdb.LPush(ctx, q.key, strconv.FormatInt(jobID, 10)).Err(); err != nil {
		return fmt.Errorf("redis: enqueue job %d: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks until a job id is available or ctx is cancelled. The
// payload is strictly a decimal integer; anything else fails with
// domain.ErrMalformedPayload so the consumer can reject it at the boundary
// instead of failing deep inside the coordinator.
func (q *JobQueue) Dequeue(ctx context.Context) (int64, error) {
	res, err := q.rdb.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: dequeue from %s: %w", q.key, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return 0, fmt.Errorf("redis: dequeue from %s: unexpected reply shape: %w", q.key, domain.ErrMalformedPayload)
	}

	jobID, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: job payload %q: %w", res[1], domain.ErrMalformedPayload)
	}
	return jobID, nil
}

// Compile-time interface check.
var _ domain.JobQueue = (*JobQueue)(nil)
