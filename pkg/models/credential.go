package models

// Credential tiers.
const (
	TierDemo       = "demo"
	TierProduction = "production"
)

// Credential identifies an API caller and carries its rate limits.
// Raw keys are never stored on the credential; only the prefix is kept for logging.
type Credential struct {
	Name               string `json:"name"`
	Tier               string `json:"tier"`
	KeyPrefix          string `json:"key_prefix"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	DailyQuota         int    `json:"daily_quota"`
	Active             bool   `json:"active"`
}
