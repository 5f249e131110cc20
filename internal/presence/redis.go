package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a status survives without a heartbeat before
// the user reads as offline.
const presenceTTL = 5 * time.Minute

// Redis is a Store backed by a redis hash per user with a TTL refreshed on
// every write.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a redis-backed presence store.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func key(userID string) string {
	return "tabchat:presence:" + userID
}

func (r *Redis) SetStatus(ctx context.Context, userID, status string) error {
	k := key(userID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, k, "status", status, "last_seen", time.Now().UnixMilli())
	pipe.Expire(ctx, k, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (r *Redis) Heartbeat(ctx context.Context, userID string) error {
	k := key(userID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, k, "last_seen", time.Now().UnixMilli())
	pipe.Expire(ctx, k, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, userID string) (*Status, error) {
	vals, err := r.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrUnknownUser
	}
	st := &Status{Status: vals["status"]}
	if ms, err := strconv.ParseInt(vals["last_seen"], 10, 64); err == nil {
		st.LastSeen = time.UnixMilli(ms)
	}
	if st.Status == "" {
		st.Status = "offline"
	}
	return st, nil
}
