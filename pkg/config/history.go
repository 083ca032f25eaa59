package config

import "time"

// HistoryConfig is the retry policy shared by every history operation.
// Zero values in YAML keep the defaults.
type HistoryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the first backoff delay; each retry doubles it.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// DefaultHistoryConfig returns the built-in history retry defaults.
func DefaultHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}
