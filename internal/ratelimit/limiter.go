// Package ratelimit enforces per-credential request limits: a fixed one-minute window
// and a rolling 24 hour quota.
package ratelimit

import (
	"context"
	"time"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const (
	MinuteWindow = time.Minute
	DailyWindow  = 24 * time.Hour
)

// Limiter decides whether a credential may submit another request.
// Allowed checks increment both counters atomically; denied checks change nothing.
type Limiter interface {
	Check(ctx context.Context, cred *models.Credential, now time.Time) (Decision, error)
	Usage(ctx context.Context, cred *models.Credential, now time.Time) (Usage, error)
	Ping(ctx context.Context) error
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	Reason  string
	// RetryAfter is the time until the window that caused a denial rolls over.
	RetryAfter time.Duration
	// Remaining is the smaller of the minute and daily headroom after this check.
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Err returns the rate limit error for a denied decision, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &models.RateLimitError{Reason: d.Reason, RetryAfter: d.RetryAfter, Limit: d.Limit}
}

// Usage is a read-only snapshot of a credential's counters.
type Usage struct {
	MinuteCount       int       `json:"minute_count"`
	MinuteLimit       int       `json:"minute_limit"`
	MinuteWindowStart time.Time `json:"minute_window_start,omitempty"`
	DailyCount        int       `json:"daily_count"`
	DailyQuota        int       `json:"daily_quota"`
	WindowStart       time.Time `json:"window_start,omitempty"`
	DailyResetAt      time.Time `json:"daily_reset_at,omitempty"`
}

// DailyRemaining is the number of requests left in the current daily window.
func (u Usage) DailyRemaining() int {
	if r := u.DailyQuota - u.DailyCount; r > 0 {
		return r
	}
	return 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
