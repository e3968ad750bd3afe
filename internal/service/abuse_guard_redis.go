package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"github.com/redis/go-redis/v9"
)

// redisAbuseBumpScript counts one failure on every key and returns the
// longest resulting cooldown in milliseconds.
var redisAbuseBumpScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free_attempts = tonumber(ARGV[6])

local longest = 0
for _, key in ipairs(KEYS) do
  local failures = tonumber(redis.call("HGET", key, "failures") or "0")
  local last_ms = tonumber(redis.call("HGET", key, "last_failure_ms") or "0")
  if last_ms == 0 or (now_ms - last_ms) > reset_ms then
    failures = 0
  end
  failures = failures + 1

  local delay = 0
  if failures > free_attempts then
    delay = math.floor(base_ms * (multiplier ^ (failures - free_attempts - 1)))
  end
  if delay > max_ms then
    delay = max_ms
  end

  redis.call("HSET", key, "failures", tostring(failures), "last_failure_ms", tostring(now_ms), "cooldown_until_ms", tostring(now_ms + delay))
  redis.call("PEXPIRE", key, reset_ms + delay + 60000)
  if delay > longest then
    longest = delay
  end
end
return longest
`)

// RedisAbuseGuard shares counters across replicas.
type RedisAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AbusePolicy
	now    func() time.Time
}

func NewRedisAbuseGuard(client redis.UniversalClient, prefix string, policy AbusePolicy, now func() time.Time) *RedisAbuseGuard {
	if prefix == "" {
		prefix = "identity"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisAbuseGuard{client: client, prefix: prefix + ":abuse", policy: normalizeAbusePolicy(policy), now: now}
}

func (g *RedisAbuseGuard) Check(ctx context.Context, scope AbuseScope, subject, ip string) (time.Duration, error) {
	keys := g.keys(scope, subject, ip)
	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HMGet(ctx, key, "last_failure_ms", "cooldown_until_ms")
		}
		return nil
	})
	if err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "error")
		return 0, err
	}
	nowMS := g.now().UnixMilli()
	var wait time.Duration
	for _, cmd := range cmds {
		d, err := g.remaining(cmd.Val(), nowMS)
		if err != nil {
			return 0, err
		}
		wait = max(wait, d)
	}
	recordAbuseCheck(ctx, scope, wait)
	return wait, nil
}

func (g *RedisAbuseGuard) RegisterFailure(ctx context.Context, scope AbuseScope, subject, ip string) (time.Duration, error) {
	res, err := redisAbuseBumpScript.Run(ctx, g.client, g.keys(scope, subject, ip),
		g.now().UnixMilli(),
		g.policy.BaseDelay.Milliseconds(),
		g.policy.Multiplier,
		g.policy.MaxDelay.Milliseconds(),
		g.policy.ResetWindow.Milliseconds(),
		g.policy.FreeAttempts,
	).Int64()
	if err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "failure", "error")
		return 0, err
	}
	wait := time.Duration(max(res, 0)) * time.Millisecond
	recordAbuseFailure(ctx, scope, wait)
	return wait, nil
}

func (g *RedisAbuseGuard) Reset(ctx context.Context, scope AbuseScope, subject, ip string) error {
	if err := g.client.Del(ctx, g.keys(scope, subject, ip)...).Err(); err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "error")
		return err
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "ok")
	return nil
}

func (g *RedisAbuseGuard) keys(scope AbuseScope, subject, ip string) []string {
	dims := abuseDimensions(scope, subject, ip)
	return []string{g.prefix + ":" + dims[0], g.prefix + ":" + dims[1]}
}

func (g *RedisAbuseGuard) remaining(values []any, nowMS int64) (time.Duration, error) {
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return 0, nil
	}
	lastMS, err := parseRedisMillis(values[0])
	if err != nil {
		return 0, err
	}
	untilMS, err := parseRedisMillis(values[1])
	if err != nil {
		return 0, err
	}
	if nowMS-lastMS > g.policy.ResetWindow.Milliseconds() || untilMS <= nowMS {
		return 0, nil
	}
	return time.Duration(untilMS-nowMS) * time.Millisecond, nil
}

// HMGET returns hash fields as strings.
func parseRedisMillis(v any) (int64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseInt(n, 10, 64)
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
