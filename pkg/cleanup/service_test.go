package cleanup_test

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy-core/pkg/cleanup"
	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/history"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	testdb "github.com/codeready-toolchain/tarsy-core/test/database"
)

var testChain = &models.ChainDefinition{
	ChainID: "k8s-analysis",
	Stages:  []models.ChainStageDefinition{{Name: "analysis", Agent: "KubernetesAgent"}},
}

func setupHistory(t *testing.T) (*history.Service, *stdsql.DB) {
	t.Helper()
	client := testdb.NewSQLiteTestClient(t)
	retry := history.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return history.NewService(history.NewInfraFromClient(client, retry, nil)), client.DB()
}

func createSession(t *testing.T, svc *history.Service, startedAt time.Time) string {
	t.Helper()
	id := uuid.New().String()
	require.True(t, svc.CreateSession(context.Background(), &models.ChainContext{
		SessionID:             id,
		AlertType:             "kubernetes",
		AlertData:             json.RawMessage(`{"pod":"api-0"}`),
		ProcessingStartedAtUs: startedAt.UnixMicro(),
	}, testChain))
	return id
}

func complete(t *testing.T, svc *history.Service, id string) {
	t.Helper()
	ctx := context.Background()
	require.True(t, svc.UpdateSessionStatus(ctx, id, models.SessionStatusInProgress, models.SessionStatusUpdate{}))
	require.True(t, svc.UpdateSessionStatus(ctx, id, models.SessionStatusCompleted, models.SessionStatusUpdate{}))
}

func retentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{SessionRetentionDays: 365, CleanupInterval: time.Hour}
}

func TestEnforceRetentionDeletesOldTerminalSessions(t *testing.T) {
	svc, _ := setupHistory(t)
	ctx := context.Background()
	old := time.Now().Add(-400 * 24 * time.Hour)

	oldCompleted := createSession(t, svc, old)
	complete(t, svc, oldCompleted)
	oldPending := createSession(t, svc, old)
	recent := createSession(t, svc, time.Now())
	complete(t, svc, recent)

	s := cleanup.NewService(retentionConfig(), config.DefaultQueueConfig(), svc)
	assert.Equal(t, 1, s.EnforceRetention(ctx))

	assert.Nil(t, svc.GetSession(ctx, oldCompleted))
	assert.NotNil(t, svc.GetSession(ctx, oldPending))
	assert.NotNil(t, svc.GetSession(ctx, recent))
	assert.Zero(t, s.EnforceRetention(ctx))
}

func TestRunOrphanSweepUsesThreshold(t *testing.T) {
	svc, db := setupHistory(t)
	ctx := context.Background()

	stale := createSession(t, svc, time.Now().Add(-2*time.Hour))
	fresh := createSession(t, svc, time.Now().Add(-time.Hour))
	require.NotNil(t, svc.ClaimNextPendingSession(ctx, "pod-a"))
	require.NotNil(t, svc.ClaimNextPendingSession(ctx, "pod-a"))
	_, err := db.Exec("UPDATE alert_sessions SET last_interaction_at = ? WHERE session_id = ?",
		time.Now().Add(-35*time.Minute).UnixMicro(), stale)
	require.NoError(t, err)

	queueCfg := config.DefaultQueueConfig()
	queueCfg.OrphanThreshold = 30 * time.Minute
	s := cleanup.NewService(retentionConfig(), queueCfg, svc)

	sessions, chats := s.RunOrphanSweep(ctx)
	assert.Equal(t, 1, sessions)
	assert.Zero(t, chats)
	assert.Equal(t, models.SessionStatusFailed, svc.GetSession(ctx, stale).Status)
	assert.Equal(t, models.SessionStatusInProgress, svc.GetSession(ctx, fresh).Status)
}

// countingSweeper records how often each sweep ran.
type countingSweeper struct {
	mu        sync.Mutex
	orphans   int
	chats     int
	retention int
	cutoffs   []int64
}

func (c *countingSweeper) CleanupOrphanedSessions(context.Context, int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orphans++
	return 0
}

func (c *countingSweeper) CleanupOrphanedChats(context.Context, int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats++
	return 0
}

func (c *countingSweeper) DeleteSessionsOlderThan(_ context.Context, cutoffUs int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retention++
	c.cutoffs = append(c.cutoffs, cutoffUs)
	return 0
}

func (c *countingSweeper) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orphans, c.chats, c.retention
}

func TestServiceStartStop(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
	}{
		{name: "interval", schedule: ""},
		{name: "cron schedule", schedule: "0 3 * * *"},
		{name: "invalid schedule falls back to interval", schedule: "not a schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := &countingSweeper{}
			retention := retentionConfig()
			retention.CleanupInterval = 10 * time.Millisecond
			retention.CleanupSchedule = tt.schedule
			queueCfg := config.DefaultQueueConfig()
			queueCfg.OrphanDetectionInterval = 10 * time.Millisecond

			s := cleanup.NewService(retention, queueCfg, sweeper)
			s.Start(context.Background())
			s.Start(context.Background())

			require.Eventually(t, func() bool {
				orphans, chats, ret := sweeper.counts()
				return orphans >= 2 && chats >= 2 && ret >= 1
			}, 5*time.Second, 5*time.Millisecond)

			s.Stop()
			s.Stop()

			_, _, ret := sweeper.counts()
			if tt.schedule == "0 3 * * *" {
				// Only the startup pass; the next firing is at 03:00.
				assert.Equal(t, 1, ret)
			}

			sweeper.mu.Lock()
			cutoff := time.UnixMicro(sweeper.cutoffs[0])
			sweeper.mu.Unlock()
			assert.WithinDuration(t, time.Now().Add(-365*24*time.Hour), cutoff, time.Minute)
		})
	}
}
