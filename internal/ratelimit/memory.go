package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

type bucket struct {
	mu          sync.Mutex
	minuteStart time.Time
	minuteCount int
	dayStart    time.Time
	dayCount    int
}

// MemoryLimiter keeps counters in process. Each credential has its own lock, so
// checks for different credentials never contend.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket)}
}

func (l *MemoryLimiter) bucket(name string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[name]
	if !ok {
		b = &bucket{}
		l.buckets[name] = b
	}
	return b
}

func (l *MemoryLimiter) Check(_ context.Context, cred *models.Credential, now time.Time) (Decision, error) {
	b := l.bucket(cred.Name)
	b.mu.Lock()
	defer b.mu.Unlock()

	minuteStart, minuteCount := b.minuteStart, b.minuteCount
	if minuteStart.IsZero() || !now.Before(minuteStart.Add(MinuteWindow)) {
		minuteStart, minuteCount = now, 0
	}
	dayStart, dayCount := b.dayStart, b.dayCount
	if dayStart.IsZero() || !now.Before(dayStart.Add(DailyWindow)) {
		dayStart, dayCount = now, 0
	}

	if minuteCount >= cred.RateLimitPerMinute {
		reset := minuteStart.Add(MinuteWindow)
		return Decision{
			Reason:     models.ReasonPerMinuteExceeded,
			RetryAfter: reset.Sub(now),
			Limit:      cred.RateLimitPerMinute,
			ResetAt:    reset,
		}, nil
	}
	if dayCount >= cred.DailyQuota {
		reset := dayStart.Add(DailyWindow)
		return Decision{
			Reason:     models.ReasonDailyQuotaExceeded,
			RetryAfter: reset.Sub(now),
			Limit:      cred.DailyQuota,
			ResetAt:    reset,
		}, nil
	}

	b.minuteStart, b.minuteCount = minuteStart, minuteCount+1
	b.dayStart, b.dayCount = dayStart, dayCount+1

	return Decision{
		Allowed:   true,
		Remaining: minInt(cred.RateLimitPerMinute-b.minuteCount, cred.DailyQuota-b.dayCount),
		Limit:     cred.RateLimitPerMinute,
		ResetAt:   b.minuteStart.Add(MinuteWindow),
	}, nil
}

func (l *MemoryLimiter) Usage(_ context.Context, cred *models.Credential, now time.Time) (Usage, error) {
	b := l.bucket(cred.Name)
	b.mu.Lock()
	defer b.mu.Unlock()

	u := Usage{MinuteLimit: cred.RateLimitPerMinute, DailyQuota: cred.DailyQuota}
	if !b.minuteStart.IsZero() && now.Before(b.minuteStart.Add(MinuteWindow)) {
		u.MinuteCount = b.minuteCount
		u.MinuteWindowStart = b.minuteStart
	}
	if !b.dayStart.IsZero() && now.Before(b.dayStart.Add(DailyWindow)) {
		u.DailyCount = b.dayCount
		u.WindowStart = b.dayStart
		u.DailyResetAt = b.dayStart.Add(DailyWindow)
	}
	return u, nil
}

func (l *MemoryLimiter) Ping(context.Context) error { return nil }
