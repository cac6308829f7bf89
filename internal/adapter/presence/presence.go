// internal/adapter/presence/presence.go

package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"spotit/internal/domain/friend"
)

const keyPrefix = "presence:"

// Config contains configuration for presence tracking
type Config struct {
	// OnlineWindow is how recent a heartbeat must be to count as online
	OnlineWindow time.Duration
	// Retention is how long the last heartbeat is remembered
	Retention time.Duration
}

// RedisTracker stores each user's last heartbeat in Redis
type RedisTracker struct {
	redis  *redis.Client
	config Config
	now    func() time.Time
}

// NewRedisTracker creates a presence tracker
func NewRedisTracker(client *redis.Client, config Config) *RedisTracker {
	if config.OnlineWindow <= 0 {
		config.OnlineWindow = 2 * time.Minute
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	return &RedisTracker{
		redis:  client,
		config: config,
		now:    time.Now,
	}
}

// Heartbeat records that userID is active now
func (t *RedisTracker) Heartbeat(ctx context.Context, userID string) error {
	value := strconv.FormatInt(t.now().UnixMilli(), 10)
	if err := t.redis.Set(ctx, keyPrefix+userID, value, t.config.Retention).Err(); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// Apply fills Status and LastActive of each friend from their heartbeats
func (t *RedisTracker) Apply(ctx context.Context, friends []friend.Friend) ([]friend.Friend, error) {
	if len(friends) == 0 {
		return friends, nil
	}

	pipe := t.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(friends))
	for i, f := range friends {
		cmds[i] = pipe.Get(ctx, keyPrefix+f.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get presence data: %w", err)
	}

	now := t.now()
	out := make([]friend.Friend, len(friends))
	for i, f := range friends {
		value, err := cmds[i].Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to get presence for %s: %w", f.ID, err)
		}
		online, lastSeen := decode(value, now, t.config.OnlineWindow)
		out[i] = f.WithPresence(online, lastSeen)
	}
	return out, nil
}

// decode turns a stored heartbeat into presence. An empty or unreadable
// value means the user was never seen.
func decode(value string, now time.Time, window time.Duration) (bool, time.Time) {
	if value == "" {
		return false, time.Time{}
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, time.Time{}
	}
	lastSeen := time.UnixMilli(ms).UTC()
	return now.Sub(lastSeen) <= window, lastSeen
}
