package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// SessionRetentionDays is how many days to keep terminal sessions
	// before deleting them. Child rows go with them via ON DELETE CASCADE.
	SessionRetentionDays int `yaml:"session_retention_days"`

	// CleanupInterval is how often the retention pass runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// CleanupSchedule is an optional standard cron expression
	// ("0 3 * * *"). When set it replaces CleanupInterval.
	CleanupSchedule string `yaml:"cleanup_schedule,omitempty"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays: 365,
		CleanupInterval:      12 * time.Hour,
	}
}

// RetentionPeriod returns SessionRetentionDays as a duration.
func (r *RetentionConfig) RetentionPeriod() time.Duration {
	return time.Duration(r.SessionRetentionDays) * 24 * time.Hour
}
