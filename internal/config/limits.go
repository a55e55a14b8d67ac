package config

import "time"

type Limits struct {
	// MaxPromptSize bounds the characters of one request; zero disables it.
	MaxPromptSize int `yaml:"max_prompt_size" validate:"min=0,max=10000000"`
	// MaxRetries is the number of extra attempts on retryable gateway
	// errors. The default of zero keeps the no-retry policy.
	MaxRetries int             `yaml:"max_retries" validate:"min=0,max=10"`
	Timeout    time.Duration   `yaml:"timeout" validate:"min=0,max=1h"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	// RequestsPerMinute of zero disables rate limiting.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"min=0,max=10000"`
	BurstSize         int `yaml:"burst_size" validate:"min=1,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxPromptSize: 200000,
		MaxRetries:    0,
		Timeout:       5 * time.Minute,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
		},
	}
}
