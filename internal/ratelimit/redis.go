package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/cache"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"github.com/redis/go-redis/v9"
)

// checkScript checks both windows and increments them only when neither is exhausted.
// KEYS: minute counter, daily counter.
// ARGV: minute limit, daily quota, minute window ms, daily window ms.
// Returns {allowed, reason, ttl_ms, minute_count, daily_count}; reason 1 is minute, 2 is daily.
var checkScript = redis.NewScript(`
local m = tonumber(redis.call('GET', KEYS[1]) or '0')
local d = tonumber(redis.call('GET', KEYS[2]) or '0')
if m >= tonumber(ARGV[1]) then
	return {0, 1, redis.call('PTTL', KEYS[1]), m, d}
end
if d >= tonumber(ARGV[2]) then
	return {0, 2, redis.call('PTTL', KEYS[2]), m, d}
end
m = redis.call('INCR', KEYS[1])
if m == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[3]) end
d = redis.call('INCR', KEYS[2])
if d == 1 then redis.call('PEXPIRE', KEYS[2], ARGV[4]) end
return {1, 0, redis.call('PTTL', KEYS[1]), m, d}
`)

// RedisLimiter shares counters across replicas. Windows are measured by key TTLs on the
// Redis server, so the now argument is only used to express reset times.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Check(ctx context.Context, cred *models.Credential, now time.Time) (Decision, error) {
	keys := []string{cache.RateLimitKey(cred.Name), cache.DailyQuotaKey(cred.Name)}
	res, err := checkScript.Run(ctx, l.client, keys,
		cred.RateLimitPerMinute, cred.DailyQuota,
		MinuteWindow.Milliseconds(), DailyWindow.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 5 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}

	allowed, reason, ttl := res[0] == 1, res[1], res[2]
	minuteCount, dailyCount := int(res[3]), int(res[4])

	if allowed {
		return Decision{
			Allowed:   true,
			Remaining: minInt(cred.RateLimitPerMinute-minuteCount, cred.DailyQuota-dailyCount),
			Limit:     cred.RateLimitPerMinute,
			ResetAt:   now.Add(ttlOr(ttl, MinuteWindow)),
		}, nil
	}

	d := Decision{Reason: models.ReasonPerMinuteExceeded, Limit: cred.RateLimitPerMinute}
	window := MinuteWindow
	if reason == 2 {
		d.Reason, d.Limit, window = models.ReasonDailyQuotaExceeded, cred.DailyQuota, DailyWindow
	}
	d.RetryAfter = ttlOr(ttl, window)
	d.ResetAt = now.Add(d.RetryAfter)
	return d, nil
}

func (l *RedisLimiter) Usage(ctx context.Context, cred *models.Credential, now time.Time) (Usage, error) {
	minuteKey, dailyKey := cache.RateLimitKey(cred.Name), cache.DailyQuotaKey(cred.Name)

	pipe := l.client.Pipeline()
	minuteCount := pipe.Get(ctx, minuteKey)
	minuteTTL := pipe.PTTL(ctx, minuteKey)
	dailyCount := pipe.Get(ctx, dailyKey)
	dailyTTL := pipe.PTTL(ctx, dailyKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}

	u := Usage{MinuteLimit: cred.RateLimitPerMinute, DailyQuota: cred.DailyQuota}
	if n, err := minuteCount.Int(); err == nil {
		u.MinuteCount = n
		if ttl := minuteTTL.Val(); ttl > 0 {
			u.MinuteWindowStart = now.Add(ttl - MinuteWindow)
		}
	}
	if n, err := dailyCount.Int(); err == nil {
		u.DailyCount = n
		if ttl := dailyTTL.Val(); ttl > 0 {
			u.WindowStart = now.Add(ttl - DailyWindow)
			u.DailyResetAt = now.Add(ttl)
		}
	}
	return u, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// ttlOr converts a PTTL reply in milliseconds, falling back to the full window when the
// key has no expiry.
func ttlOr(ms int64, window time.Duration) time.Duration {
	if ms <= 0 {
		return window
	}
	return time.Duration(ms) * time.Millisecond
}
