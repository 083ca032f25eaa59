package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()

	assert.Equal(t, 5, cfg.MaxGlobalConcurrent)
	assert.Equal(t, 1*time.Second, cfg.ClaimInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.ClaimIntervalJitter)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout)
	assert.Equal(t, 15*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 15*time.Minute, cfg.GracefulShutdownTimeout)
	assert.Equal(t, 5*time.Minute, cfg.OrphanDetectionInterval)
	assert.Equal(t, 30*time.Minute, cfg.OrphanThreshold)
}

func TestOrphanThresholdMinutes(t *testing.T) {
	tests := []struct {
		threshold time.Duration
		want      int
	}{
		{30 * time.Minute, 30},
		{90 * time.Second, 2},
		{10 * time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.threshold.String(), func(t *testing.T) {
			q := &QueueConfig{OrphanThreshold: tt.threshold}
			assert.Equal(t, tt.want, q.OrphanThresholdMinutes())
		})
	}
}

func TestRetentionPeriod(t *testing.T) {
	r := &RetentionConfig{SessionRetentionDays: 2}
	assert.Equal(t, 48*time.Hour, r.RetentionPeriod())
}
