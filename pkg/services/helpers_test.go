package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/history"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/services"
	testdb "github.com/codeready-toolchain/tarsy-core/test/database"
)

func newHistory(t *testing.T) *history.Service {
	t.Helper()
	retry := history.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return history.NewService(history.NewInfraFromClient(testdb.NewSQLiteTestClient(t), retry, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Defaults: &config.Defaults{AlertType: "generic", RunbookURL: "https://runbooks.example.com/generic.md"},
		ChainRegistry: config.NewChainRegistry(map[string]*config.ChainConfig{
			"k8s-analysis": {
				AlertTypes: []string{"pod-crash"},
				Stages: []config.StageConfig{
					{Name: "analysis", Agents: []config.StageAgentConfig{{Name: "KubernetesAgent"}}},
				},
			},
			"default-chain": {
				AlertTypes: []string{"generic"},
				Stages: []config.StageConfig{
					{Name: "analysis", Agents: []config.StageAgentConfig{{Name: "GenericAgent"}}},
				},
			},
		}),
	}
}

func submit(t *testing.T, svc *history.Service) string {
	t.Helper()
	cc, err := services.NewAlertService(svc, testConfig()).SubmitAlert(context.Background(), services.SubmitAlertInput{
		AlertType: "pod-crash",
		Data:      json.RawMessage(`{"pod":"api-0"}`),
	})
	require.NoError(t, err)
	return cc.SessionID
}

// fakeCanceller records local cancel requests.
type fakeCanceller struct {
	mu      sync.Mutex
	running map[string]bool
	calls   []string
}

func (f *fakeCanceller) CancelSession(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sessionID)
	return f.running[sessionID]
}

type failingAlertStore struct{}

func (failingAlertStore) CreateSession(context.Context, *models.ChainContext, *models.ChainDefinition) bool {
	return false
}
