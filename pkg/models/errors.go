package models

import (
	"errors"
	"fmt"
	"time"
)

// Rejection errors surfaced synchronously at admission, and lookup errors.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limited")
	ErrQueueSaturated  = errors.New("queue saturated")
	ErrNotFound        = errors.New("resource not found")
)

// Rate limit denial reasons.
const (
	ReasonPerMinuteExceeded  = "PerMinuteExceeded"
	ReasonDailyQuotaExceeded = "DailyQuotaExceeded"
)

// RateLimitError is returned when a credential is over its minute limit or daily quota.
// errors.Is(err, ErrRateLimited) holds for it.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
	Limit      int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Reason, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds the hint up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	return CeilSeconds(e.RetryAfter)
}

// InvalidRequestError wraps ErrInvalidRequest with the offending field.
func InvalidRequestError(field, message string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRequest, field, message)
}

// CeilSeconds converts d to whole seconds rounding up, with a floor of one.
func CeilSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
