package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// takeScript implements the window state machine atomically. Times are unix
// milliseconds so callers control the clock.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset') or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
if reset <= now then
	reset = now + window
	redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
	redis.call('PEXPIRE', KEYS[1], window * 2)
	return {1, 1, reset}
end
if count >= limit then
	return {0, count, reset}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset}
`)

// RedisStore shares counters between replicas in Redis.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a store using client. Keys are prefixed with prefix.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Take(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		policy.Limit, policy.Window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err != nil {
		return Decision{}, eris.Wrapf(err, "ratelimit: redis take %s", key)
	}
	if len(res) != 3 {
		return Decision{}, eris.Errorf("ratelimit: unexpected script result %v", res)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Limit:   policy.Limit,
		ResetAt: time.UnixMilli(res[2]).UTC(),
	}
	if d.Allowed {
		d.Remaining = max(0, policy.Limit-int(res[1]))
	}
	return d, nil
}
