package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript mirrors refill and the take in MemoryStore. Times are unix milliseconds.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local state = redis.call("HMGET", KEYS[1], "tokens", "refilled")
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil or refilled == nil then
	tokens = capacity
	refilled = now
end

if now >= refilled then
	local steps = math.floor((now - refilled) / interval)
	if steps > 0 then
		tokens = math.min(capacity, tokens + steps * rate)
		refilled = refilled + steps * interval
	end
	if tokens >= capacity then
		tokens = capacity
		refilled = now
	end
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "refilled", refilled)
redis.call("PEXPIRE", KEYS[1], ttl)
return {tokens, refilled + interval, allowed}
`)

// RedisStore shares buckets across instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store keeping buckets at prefix+key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Take(ctx context.Context, key string, n int, cfg Config, now time.Time) (Result, error) {
	out, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity,
		cfg.RefillRate,
		cfg.RefillInterval.Milliseconds(),
		now.UnixMilli(),
		n,
		cfg.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(out) != 3 {
		return Result{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}
	return Result{
		Limit:     cfg.Capacity,
		Remaining: int(out[0]),
		ResetAt:   time.UnixMilli(out[1]),
		Allowed:   out[2] == 1,
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
