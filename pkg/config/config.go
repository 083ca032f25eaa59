package config

import "github.com/codeready-toolchain/tarsy-core/pkg/models"

// Config is the umbrella configuration object returned by Initialize and
// handed to the session core at startup.
type Config struct {
	configDir string

	Defaults *Defaults

	// Claim worker and session runner
	Queue *QueueConfig

	// Retry policy for history operations
	History *HistoryConfig

	// Retention and orphan sweep cadence
	Retention *RetentionConfig

	ChainRegistry *ChainRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Chains     int `json:"chains"`
	AlertTypes int `json:"alert_types"`
}

// Stats returns configuration statistics for logging.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.ChainRegistry != nil {
		s.Chains = c.ChainRegistry.Len()
		s.AlertTypes = len(c.ChainRegistry.AlertTypes())
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetChain retrieves a chain configuration by ID.
func (c *Config) GetChain(chainID string) (*ChainConfig, error) {
	return c.ChainRegistry.Get(chainID)
}

// ResolveChain returns the chain snapshot stored on sessions of the given
// alert type. An empty alert type falls back to Defaults.AlertType.
func (c *Config) ResolveChain(alertType string) (*models.ChainDefinition, error) {
	if alertType == "" && c.Defaults != nil {
		alertType = c.Defaults.AlertType
	}
	return c.ChainRegistry.Resolve(alertType)
}
