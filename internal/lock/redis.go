package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Release and extend must be atomic check-then-act on the token, so both
// run as server-side scripts.
var (
	compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock backs the distributed lock with a shared Redis instance so
// mutual exclusion holds across engine processes.
type RedisLock struct {
	client redis.UniversalClient
}

func NewRedisLock(client redis.UniversalClient) *RedisLock {
	return &RedisLock{client: client}
}

// NewRedisLockFromURL connects from a redis:// URL and verifies the
// connection before returning.
func NewRedisLockFromURL(ctx context.Context, rawURL string) (*RedisLock, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisLock{client: client}, nil
}

func (r *RedisLock) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	acquired, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed for %s: %w", key, err)
	}
	return acquired, nil
}

func (r *RedisLock) CompareAndDelete(ctx context.Context, key, expectedValue string) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, expectedValue).Int()
	if err != nil {
		return false, fmt.Errorf("lock release failed for %s: %w", key, err)
	}
	return deleted == 1, nil
}

func (r *RedisLock) Extend(ctx context.Context, key, expectedValue string, ttl time.Duration) (bool, error) {
	extended, err := extendScript.Run(ctx, r.client, []string{key}, expectedValue, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lock extend failed for %s: %w", key, err)
	}
	return extended == 1, nil
}

func (r *RedisLock) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("lock check failed for %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *RedisLock) Close() error {
	return r.client.Close()
}
