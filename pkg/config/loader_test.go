package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTarsyYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tarsyConfigFile), []byte(content), 0o600))
	return dir
}

func TestInitializeWithoutConfigFile(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultQueueConfig(), cfg.Queue)
	assert.Equal(t, DefaultHistoryConfig(), cfg.History)
	assert.Equal(t, DefaultRetentionConfig(), cfg.Retention)
	assert.Equal(t, "kubernetes", cfg.Defaults.AlertType)
	assert.True(t, cfg.ChainRegistry.Has("kubernetes-agent-chain"))

	def, err := cfg.ResolveChain("")
	require.NoError(t, err)
	assert.Equal(t, "kubernetes-agent-chain", def.ChainID)
}

func TestInitializeMergesUserValues(t *testing.T) {
	t.Setenv("TEST_MAX_SESSIONS", "3")
	dir := writeTarsyYAML(t, `
queue:
  max_global_concurrent: {{.TEST_MAX_SESSIONS}}
  claim_interval: 2s
history:
  max_retries: 5
system:
  retention:
    session_retention_days: 30
    cleanup_schedule: "0 3 * * *"
defaults:
  alert_type: pod-crash
agent_chains:
  crash-chain:
    alert_types: [pod-crash]
    stages:
      - name: triage
        agents:
          - name: A
          - name: B
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.MaxGlobalConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Queue.ClaimInterval)
	// Unset keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Queue.StopTimeout)
	assert.Equal(t, 5, cfg.History.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.History.BaseDelay)
	assert.Equal(t, 30, cfg.Retention.SessionRetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.Retention.CleanupSchedule)
	assert.Equal(t, 12*time.Hour, cfg.Retention.CleanupInterval)
	assert.Equal(t, dir, cfg.ConfigDir())

	assert.Equal(t, Stats{Chains: 2, AlertTypes: 2}, cfg.Stats())

	def, err := cfg.ResolveChain("")
	require.NoError(t, err)
	assert.Equal(t, "crash-chain", def.ChainID)
	assert.Equal(t, []string{"A", "B"}, def.Stages[0].Agents)
}

func TestInitializeErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		errMsg  string
	}{
		{
			name:    "invalid YAML",
			content: "queue: [unclosed",
			wantErr: ErrInvalidYAML,
		},
		{
			name: "bad cron schedule",
			content: `
system:
  retention:
    cleanup_schedule: "every tuesday"
`,
			wantErr: ErrInvalidValue,
			errMsg:  "cleanup_schedule",
		},
		{
			name: "default alert type without a chain",
			content: `
defaults:
  alert_type: unknown
`,
			wantErr: ErrChainNotFound,
		},
		{
			name: "chain without stages",
			content: `
agent_chains:
  empty:
    alert_types: [x]
`,
			errMsg: "at least one stage required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Initialize(context.Background(), writeTarsyYAML(t, tt.content))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
