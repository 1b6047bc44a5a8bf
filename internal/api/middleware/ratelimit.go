package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// SetRateLimitHeaders reports the credential's current window. A negative remaining
// value means the limiter could not be consulted and the headers are omitted.
func SetRateLimitHeaders(w http.ResponseWriter, limit, remaining int, reset time.Time) {
	if remaining < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !reset.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	}
}

// SetRetryAfter writes Retry-After in whole seconds, rounding up.
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(models.CeilSeconds(d)))
}
