package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ConfigValidator validates configuration with field-specific errors
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll validates every section and stops at the first error.
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateHistory(); err != nil {
		return fmt.Errorf("history validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateChains(); err != nil {
		return fmt.Errorf("chain validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	return nil
}

func positive(component, field string, ok bool) error {
	if ok {
		return nil
	}
	return NewValidationError(component, "", field, fmt.Errorf("%w: must be positive", ErrInvalidValue))
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return NewValidationError("queue", "", "", fmt.Errorf("queue configuration is nil"))
	}

	checks := []struct {
		field string
		ok    bool
	}{
		{"max_global_concurrent", q.MaxGlobalConcurrent > 0},
		{"claim_interval", q.ClaimInterval > 0},
		{"stop_timeout", q.StopTimeout > 0},
		{"session_timeout", q.SessionTimeout > 0},
		{"heartbeat_interval", q.HeartbeatInterval > 0},
		{"graceful_shutdown_timeout", q.GracefulShutdownTimeout > 0},
		{"orphan_detection_interval", q.OrphanDetectionInterval > 0},
		{"orphan_threshold", q.OrphanThreshold > 0},
	}
	for _, c := range checks {
		if err := positive("queue", c.field, c.ok); err != nil {
			return err
		}
	}

	if q.ClaimIntervalJitter < 0 || q.ClaimIntervalJitter >= q.ClaimInterval {
		return NewValidationError("queue", "", "claim_interval_jitter",
			fmt.Errorf("%w: must be >= 0 and less than claim_interval", ErrInvalidValue))
	}
	if q.OrphanThreshold <= q.HeartbeatInterval {
		return NewValidationError("queue", "", "orphan_threshold",
			fmt.Errorf("%w: must exceed heartbeat_interval (%s)", ErrInvalidValue, q.HeartbeatInterval))
	}
	return nil
}

func (v *ConfigValidator) validateHistory() error {
	h := v.cfg.History
	if h == nil {
		return NewValidationError("history", "", "", fmt.Errorf("history configuration is nil"))
	}
	if h.MaxRetries < 0 {
		return NewValidationError("history", "", "max_retries", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if err := positive("history", "base_delay", h.BaseDelay > 0); err != nil {
		return err
	}
	if h.MaxDelay < h.BaseDelay {
		return NewValidationError("history", "", "max_delay", fmt.Errorf("%w: must be >= base_delay", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return NewValidationError("retention", "", "", fmt.Errorf("retention configuration is nil"))
	}
	if err := positive("retention", "session_retention_days", r.SessionRetentionDays > 0); err != nil {
		return err
	}
	if r.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(r.CleanupSchedule); err != nil {
			return NewValidationError("retention", "", "cleanup_schedule", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
		return nil
	}
	return positive("retention", "cleanup_interval", r.CleanupInterval > 0)
}

func (v *ConfigValidator) validateChains() error {
	if v.cfg.ChainRegistry == nil || v.cfg.ChainRegistry.Len() == 0 {
		return NewValidationError("chain", "", "", fmt.Errorf("at least one chain required"))
	}
	for chainID, chain := range v.cfg.ChainRegistry.GetAll() {
		if len(chain.AlertTypes) == 0 {
			return NewValidationError("chain", chainID, "alert_types", fmt.Errorf("at least one alert type required"))
		}
		if len(chain.Stages) == 0 {
			return NewValidationError("chain", chainID, "stages", fmt.Errorf("at least one stage required"))
		}
		for i := range chain.Stages {
			if err := validateStage(chainID, i, &chain.Stages[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStage(chainID string, stageIndex int, stage *StageConfig) error {
	stageRef := fmt.Sprintf("chain '%s' stage %d", chainID, stageIndex)

	if stage.Name == "" {
		return fmt.Errorf("%s: stage name required", stageRef)
	}
	if len(stage.Agents) == 0 {
		return fmt.Errorf("%s: must specify at least one agent in 'agents' array", stageRef)
	}
	for i, a := range stage.Agents {
		if a.Name == "" {
			return fmt.Errorf("%s: agent %d has no name", stageRef, i)
		}
	}
	if stage.Replicas < 0 {
		return fmt.Errorf("%s: replicas must be positive", stageRef)
	}
	return nil
}

func (v *ConfigValidator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil || d.AlertType == "" {
		return nil
	}
	if _, err := v.cfg.ChainRegistry.GetIDByAlertType(d.AlertType); err != nil {
		return NewValidationError("defaults", "", "alert_type", err)
	}
	return nil
}
