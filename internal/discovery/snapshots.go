package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "discovery:session:"

// RedisSnapshots stores session snapshots under a TTL. The TTL doubles as
// the stale-session heartbeat window: a snapshot that has expired from Redis
// is simply gone, and one close to expiry fails the heartbeat check.
type RedisSnapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSnapshots wraps the configured Redis client.
func NewRedisSnapshots(rdb *redis.Client, ttl time.Duration) *RedisSnapshots {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSnapshots{rdb: rdb, ttl: ttl}
}

// Save persists the snapshot, refreshing the TTL (the heartbeat).
func (r *RedisSnapshots) Save(ctx context.Context, snap Snapshot) error {
	if snap.State.ID == "" {
		return fmt.Errorf("snapshot has no session id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.rdb.Set(ctx, snapshotKeyPrefix+snap.State.ID, data, r.ttl).Err()
}

// Load fetches a snapshot by session id.
func (r *RedisSnapshots) Load(ctx context.Context, id string) (Snapshot, bool, error) {
	data, err := r.rdb.Get(ctx, snapshotKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Delete removes a snapshot.
func (r *RedisSnapshots) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, snapshotKeyPrefix+id).Err()
}
