package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "promptgate:ratelimit:"

// admitScript atomically evicts expired entries, checks the count, and
// records the admission in a single round trip. Returns 1 when admitted.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisAdmitter enforces the per-agent window against a shared Redis store so
// the limit holds across gateway replicas. It keeps the same trailing-window
// semantics as the process-local Window: a sorted set of admitted-request
// timestamps, pruned lazily on each call.
type RedisAdmitter struct {
	client       *redis.Client
	defaultLimit int
	window       time.Duration
	now          func() time.Time
}

// NewRedisAdmitter creates a RedisAdmitter backed by the given client.
func NewRedisAdmitter(client *redis.Client, defaultLimit int, window time.Duration) *RedisAdmitter {
	return &RedisAdmitter{
		client:       client,
		defaultLimit: defaultLimit,
		window:       window,
		now:          time.Now,
	}
}

// Admit checks and records an admission for agentID. The Lua script makes the
// check-and-record step atomic, so concurrent requests from the same agent on
// different replicas cannot both take the last slot.
func (a *RedisAdmitter) Admit(ctx context.Context, agentID string, limitPerMinute int) (bool, error) {
	limit := limitPerMinute
	if limit <= 0 {
		limit = a.defaultLimit
	}

	now := a.now()
	cutoff := now.Add(-a.window).UnixMicro()
	key := redisKeyPrefix + agentID

	res, err := admitScript.Run(ctx, a.client, []string{key},
		cutoff,
		limit,
		now.UnixMicro(),
		uuid.NewString(),
		a.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis admit for agent %s: %w", agentID, err)
	}

	return res == 1, nil
}
