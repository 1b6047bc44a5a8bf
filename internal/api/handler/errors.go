// Package handler implements the HTTP endpoints of the podcast service.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/admission"
	mw "github.com/kiranshivaraju/podcastgate/internal/api/middleware"
	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// writeError maps admission and lookup errors onto HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *models.RateLimitError
	var sat *admission.SaturatedError

	switch {
	case errors.As(err, &rl):
		mw.SetRateLimitHeaders(w, rl.Limit, 0, time.Now().Add(rl.RetryAfter))
		mw.SetRetryAfter(w, rl.RetryAfter)
		response.Error(w, http.StatusTooManyRequests, "RATE_LIMITED",
			rateLimitMessage(rl.Reason), map[string]any{
				"reason":     rl.Reason,
				"retryAfter": rl.RetryAfterSeconds(),
			})
	case errors.As(err, &sat):
		mw.SetRetryAfter(w, sat.RetryAfter)
		response.Error(w, http.StatusServiceUnavailable, "QUEUE_SATURATED",
			"The server is at capacity, retry later", nil)
	case errors.Is(err, models.ErrQueueSaturated):
		response.Error(w, http.StatusServiceUnavailable, "QUEUE_SATURATED",
			"The server is at capacity, retry later", nil)
	case errors.Is(err, models.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", invalidMessage(err), nil)
	case errors.Is(err, models.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid API key", nil)
	case errors.Is(err, models.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, admission.ErrLimiterUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "RATE_LIMITER_UNAVAILABLE",
			"Rate limiting is temporarily unavailable, retry later", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func rateLimitMessage(reason string) string {
	if reason == models.ReasonDailyQuotaExceeded {
		return "Daily quota exceeded"
	}
	return "Too many requests per minute"
}

// invalidMessage strips the sentinel prefix so clients see only the field problem.
func invalidMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), models.ErrInvalidRequest.Error()+": ")
	if msg == "" || msg == models.ErrInvalidRequest.Error() {
		return "Invalid request"
	}
	return msg
}

func credentialOrAbort(w http.ResponseWriter, r *http.Request) (*models.Credential, bool) {
	cred, ok := mw.GetCredential(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing credential", nil)
		return nil, false
	}
	return cred, true
}
