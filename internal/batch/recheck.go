package batch

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RecheckQueue holds URLs of previously-seen opportunities awaiting
// re-verification. Backed by a Redis list shared with the engine, which
// drains it when the "recheck" source is selected.
type RecheckQueue struct {
	rdb *redis.Client
	key string
}

// NewRecheckQueue wraps the configured Redis list.
func NewRecheckQueue(rdb *redis.Client, key string) *RecheckQueue {
	if key == "" {
		key = "discovery:recheck"
	}
	return &RecheckQueue{rdb: rdb, key: key}
}

// Push enqueues URLs for a later recheck pass.
func (q *RecheckQueue) Push(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	vals := make([]interface{}, len(urls))
	for i, u := range urls {
		vals[i] = u
	}
	return q.rdb.LPush(ctx, q.key, vals...).Err()
}

// Pop removes up to n URLs from the queue.
func (q *RecheckQueue) Pop(ctx context.Context, n int) ([]string, error) {
	urls, err := q.rdb.RPopCount(ctx, q.key, n).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return urls, err
}

// Len reports the number of queued URLs.
func (q *RecheckQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
