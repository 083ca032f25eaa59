package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const tarsyConfigFile = "tarsy.yaml"

// TarsyYAMLConfig represents the tarsy.yaml file structure
type TarsyYAMLConfig struct {
	System      *SystemYAMLConfig      `yaml:"system"`
	AgentChains map[string]ChainConfig `yaml:"agent_chains"`
	Defaults    *Defaults              `yaml:"defaults"`
	Queue       *QueueConfig           `yaml:"queue"`
	History     *HistoryConfig         `yaml:"history"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	Retention *RetentionConfig `yaml:"retention"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load tarsy.yaml from configDir (optional; built-in defaults otherwise)
//  2. Expand {{.ENV}} references and parse YAML
//  3. Merge user values over built-in defaults
//  4. Build the chain registry
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"chains", stats.Chains,
		"alert_types", stats.AlertTypes,
		"max_global_concurrent", cfg.Queue.MaxGlobalConcurrent)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	tarsyConfig, err := loader.loadTarsyYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError(tarsyConfigFile, err)
		}
		slog.Info("No tarsy.yaml found, using built-in defaults", "config_dir", configDir)
		tarsyConfig = &TarsyYAMLConfig{}
	}

	chains := mergeChains(builtinChains(), tarsyConfig.AgentChains)

	defaults := tarsyConfig.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if defaults.AlertType == "" {
		defaults.AlertType = defaultAlertType
	}

	queueConfig := DefaultQueueConfig()
	if tarsyConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, tarsyConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	historyConfig := DefaultHistoryConfig()
	if tarsyConfig.History != nil {
		if err := mergo.Merge(historyConfig, tarsyConfig.History, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge history config: %w", err)
		}
	}

	retentionConfig, err := resolveRetentionConfig(tarsyConfig.System)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:     configDir,
		Defaults:      defaults,
		Queue:         queueConfig,
		History:       historyConfig,
		Retention:     retentionConfig,
		ChainRegistry: NewChainRegistry(chains),
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadTarsyYAML() (*TarsyYAMLConfig, error) {
	config := TarsyYAMLConfig{
		AgentChains: make(map[string]ChainConfig),
	}
	if err := l.loadYAML(tarsyConfigFile, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// resolveRetentionConfig merges system.retention over the built-in defaults.
func resolveRetentionConfig(sys *SystemYAMLConfig) (*RetentionConfig, error) {
	cfg := DefaultRetentionConfig()
	if sys == nil || sys.Retention == nil {
		return cfg, nil
	}
	if err := mergo.Merge(cfg, sys.Retention, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}
	return cfg, nil
}
