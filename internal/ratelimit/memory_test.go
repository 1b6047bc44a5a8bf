package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/ratelimit"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoCred() *models.Credential {
	return &models.Credential{Name: "demo", Tier: models.TierDemo, KeyPrefix: "pk_demo1", RateLimitPerMinute: 10, DailyQuota: 100}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryLimiter_PerMinute(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	cred := demoCred()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := l.Check(ctx, cred, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 9-i, d.Remaining)
	}

	d, err := l.Check(ctx, cred, t0.Add(15*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonPerMinuteExceeded, d.Reason)
	assert.Equal(t, 45*time.Second, d.RetryAfter)

	err = d.Err()
	assert.ErrorIs(t, err, models.ErrRateLimited)
	var rl *models.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 45, rl.RetryAfterSeconds())
}

func TestMemoryLimiter_WindowRolls(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	cred := demoCred()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := l.Check(ctx, cred, t0)
		require.NoError(t, err)
	}
	d, _ := l.Check(ctx, cred, t0.Add(59*time.Second))
	assert.False(t, d.Allowed)

	d, err := l.Check(ctx, cred, t0.Add(60*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
}

func TestMemoryLimiter_DenialDoesNotCount(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	cred := demoCred()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = l.Check(ctx, cred, t0)
	}
	for i := 0; i < 5; i++ {
		d, _ := l.Check(ctx, cred, t0.Add(time.Second))
		require.False(t, d.Allowed)
	}

	u, err := l.Usage(ctx, cred, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 10, u.MinuteCount)
	assert.Equal(t, 10, u.DailyCount)
	assert.Equal(t, 90, u.DailyRemaining())
	assert.Equal(t, t0, u.WindowStart)
	assert.Equal(t, t0.Add(24*time.Hour), u.DailyResetAt)
}

func TestMemoryLimiter_DailyQuota(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	cred := &models.Credential{Name: "tiny", RateLimitPerMinute: 2, DailyQuota: 3}
	ctx := context.Background()

	at := t0
	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, cred, at)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		at = at.Add(time.Minute)
	}

	d, err := l.Check(ctx, cred, at)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.ReasonDailyQuotaExceeded, d.Reason)
	assert.Equal(t, t0.Add(24*time.Hour).Sub(at), d.RetryAfter)
	assert.Equal(t, 3, d.Limit)

	d, err = l.Check(ctx, cred, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_MinuteCheckedFirst(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	cred := &models.Credential{Name: "both", RateLimitPerMinute: 1, DailyQuota: 1}
	ctx := context.Background()

	_, _ = l.Check(ctx, cred, t0)
	d, _ := l.Check(ctx, cred, t0.Add(time.Second))
	assert.Equal(t, models.ReasonPerMinuteExceeded, d.Reason)
}

func TestMemoryLimiter_CredentialsIndependent(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	ctx := context.Background()
	a := &models.Credential{Name: "a", RateLimitPerMinute: 1, DailyQuota: 10}
	b := &models.Credential{Name: "b", RateLimitPerMinute: 1, DailyQuota: 10}

	d, _ := l.Check(ctx, a, t0)
	assert.True(t, d.Allowed)
	d, _ = l.Check(ctx, b, t0)
	assert.True(t, d.Allowed)
	d, _ = l.Check(ctx, a, t0)
	assert.False(t, d.Allowed)
}

func TestMemoryLimiter_ConcurrentChecksNeverOverAdmit(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	cred := demoCred()
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, cred, t0)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestMemoryLimiter_UsageEmpty(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	u, err := l.Usage(context.Background(), demoCred(), t0)
	require.NoError(t, err)
	assert.Zero(t, u.MinuteCount)
	assert.Zero(t, u.DailyCount)
	assert.True(t, u.WindowStart.IsZero())
	assert.NoError(t, l.Ping(context.Background()))
}
