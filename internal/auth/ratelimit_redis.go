package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker is a FailureTracker shared by every gateway instance through
// Redis. Each address has a failure counter whose TTL is the lockout
// duration, set on the first failure.
type RedisTracker struct {
	redis  redis.UniversalClient
	config TrackerConfig
	prefix string
}

// NewRedisTracker creates a tracker on an existing client. The caller keeps
// ownership of the client unless Close is called.
func NewRedisTracker(client redis.UniversalClient, cfg TrackerConfig) *RedisTracker {
	return &RedisTracker{
		redis:  client,
		config: cfg.withDefaults(),
		prefix: "realmgate:fail:",
	}
}

func (rt *RedisTracker) key(clientIP string) string {
	return rt.prefix + clientIP
}

// Check implements FailureTracker.
func (rt *RedisTracker) Check(ctx context.Context, clientIP string) (time.Duration, error) {
	count, err := rt.redis.Get(ctx, rt.key(clientIP)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}

	if count < int64(rt.config.MaxFailures) {
		return 0, nil
	}

	ttl, err := rt.redis.TTL(ctx, rt.key(clientIP)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	if ttl < 0 {
		ttl = rt.config.LockoutDuration
	}
	return ttl, ErrClientLocked
}

// RecordFailure implements FailureTracker.
func (rt *RedisTracker) RecordFailure(ctx context.Context, clientIP string) (int, error) {
	key := rt.key(clientIP)

	count, err := rt.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}

	if count == 1 || count == int64(rt.config.MaxFailures) {
		// The window restarts when the lockout begins so it lasts the full duration.
		if err := rt.redis.Expire(ctx, key, rt.config.LockoutDuration).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
		}
	}

	return int(count), nil
}

// Reset implements FailureTracker.
func (rt *RedisTracker) Reset(ctx context.Context, clientIP string) error {
	if err := rt.redis.Del(ctx, rt.key(clientIP)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (rt *RedisTracker) Close() error {
	return rt.redis.Close()
}
