package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript mirrors Policy.Take inside Redis so concurrent instances see a
// single atomic read-modify-write. The key expires after one idle window,
// by which time the bucket would be full again.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now_ms
end

local elapsed = now_ms - ts
if elapsed > 0 then
  tokens = math.min(capacity, tokens + (elapsed * capacity) / window_ms)
  ts = now_ms
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], window_ms)
return allowed
`)

// RedisStore keeps buckets as Redis hashes under a key prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "pps:ratelimit:"}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) Take(ctx context.Context, key string, policy Policy, now time.Time) (bool, error) {
	allowed, err := takeScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		policy.Capacity,
		policy.Window.Milliseconds(),
		now.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("take token for %s: %w", key, err)
	}
	return allowed == 1, nil
}
