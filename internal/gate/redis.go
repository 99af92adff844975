package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowScript counts a moving window in a sorted set atomically.
// KEYS[1] = window key ("gate:<actor>")
// ARGV[1] = limit
// ARGV[2] = window in milliseconds
// ARGV[3] = current unix milliseconds
var redisWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
local count = redis.call("ZCARD", key)
if count >= limit then
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    local retry = window
    if oldest[2] then
        retry = tonumber(oldest[2]) + window - now
    end
    return {0, retry}
end

redis.call("ZADD", key, now, now .. "-" .. count)
redis.call("PEXPIRE", key, window)
return {1, 0}
`)

// RedisStore shares the admission window across processes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) Allow(ctx context.Context, actorID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	key := fmt.Sprintf("gate:%s", actorID)
	res, err := redisWindowScript.Run(ctx, s.client, []string{key},
		limit, window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis gate error: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, 0, fmt.Errorf("invalid response from lua script")
	}
	allowed, _ := results[0].(int64)
	retryMs, _ := results[1].(int64)
	return allowed == 1, time.Duration(retryMs) * time.Millisecond, nil
}
