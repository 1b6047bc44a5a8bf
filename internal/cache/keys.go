package cache

import "fmt"

// RateLimitKey holds the fixed one-minute request counter for a credential.
func RateLimitKey(credential string) string {
	return fmt.Sprintf("ratelimit:minute:%s", credential)
}

// DailyQuotaKey holds the rolling 24 hour request counter for a credential.
func DailyQuotaKey(credential string) string {
	return fmt.Sprintf("ratelimit:daily:%s", credential)
}
