package config

import "time"

// QueueConfig controls how sessions are claimed and processed.
type QueueConfig struct {
	// MaxGlobalConcurrent is the limit of IN_PROGRESS sessions across ALL
	// pods. Enforced by a database COUNT before every claim.
	MaxGlobalConcurrent int `yaml:"max_global_concurrent"`

	// ClaimInterval is how long the claim loop sleeps when there is no
	// capacity or nothing to claim.
	ClaimInterval time.Duration `yaml:"claim_interval"`

	// ClaimIntervalJitter is the random jitter added to ClaimInterval.
	// Actual interval: ClaimInterval ± ClaimIntervalJitter.
	ClaimIntervalJitter time.Duration `yaml:"claim_interval_jitter"`

	// StopTimeout bounds how long Stop waits for the loop to exit before
	// cancelling it.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// SessionTimeout is the maximum time a session can be processed.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// HeartbeatInterval is how often a running session refreshes its
	// last_interaction_at.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// sessions during pod shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often the inactivity sweep runs.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a session can go without activity before
	// the inactivity sweep fails it. Must be well above HeartbeatInterval.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxGlobalConcurrent:     5,
		ClaimInterval:           1 * time.Second,
		ClaimIntervalJitter:     500 * time.Millisecond,
		StopTimeout:             5 * time.Second,
		SessionTimeout:          15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         30 * time.Minute,
	}
}

// OrphanThresholdMinutes returns OrphanThreshold rounded up to whole minutes,
// the unit the inactivity sweep takes.
func (q *QueueConfig) OrphanThresholdMinutes() int {
	m := int((q.OrphanThreshold + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
