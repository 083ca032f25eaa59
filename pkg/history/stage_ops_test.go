package history_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy-core/pkg/history"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// createParallelStage creates a parent stage with n replica children.
func createParallelStage(t *testing.T, svc *history.Service, sessionID string, stageIndex, n int) (*models.StageExecution, []*models.StageExecution) {
	t.Helper()
	ctx := context.Background()
	parent := &models.StageExecution{
		SessionID:             sessionID,
		StageIndex:            stageIndex,
		StageID:               "stage-parallel",
		StageName:             "parallel investigation",
		Agent:                 "KubernetesAgent",
		ParallelType:          models.ParallelTypeReplica,
		ExpectedParallelCount: ptr(n),
	}
	require.NotEmpty(t, svc.CreateStageExecution(ctx, parent))

	var children []*models.StageExecution
	for i := range n {
		child := &models.StageExecution{
			SessionID:              sessionID,
			ParentStageExecutionID: parent.ExecutionID,
			ParallelIndex:          i + 1,
			ParallelType:           models.ParallelTypeReplica,
			StageIndex:             stageIndex,
			StageID:                "stage-parallel",
			StageName:              "parallel investigation",
			Agent:                  "KubernetesAgent",
		}
		require.NotEmpty(t, svc.CreateStageExecution(ctx, child))
		children = append(children, child)
	}
	return parent, children
}

func createStage(t *testing.T, svc *history.Service, sessionID string, stageIndex int, agent string) *models.StageExecution {
	t.Helper()
	st := &models.StageExecution{
		SessionID:  sessionID,
		StageIndex: stageIndex,
		StageID:    "stage-" + agent,
		StageName:  agent,
		Agent:      agent,
	}
	require.NotEmpty(t, svc.CreateStageExecution(context.Background(), st))
	return st
}

func TestStageExecutionLifecycle(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	sessionID := createSession(t, svc, 0)

	st := createStage(t, svc, sessionID, 0, "KubernetesAgent")
	assert.Equal(t, models.StageStatusPending, st.Status)

	started := models.NowUs() - 5_000_000
	st.Status = models.StageStatusActive
	st.StartedAtUs = &started
	require.True(t, svc.UpdateStageExecution(ctx, st))
	require.True(t, svc.UpdateSessionCurrentStage(ctx, sessionID, 0, st.ExecutionID))

	st.Finish(models.StageStatusCompleted, models.NowUs())
	st.StageOutput = json.RawMessage(`{"summary":"done"}`)
	require.True(t, svc.UpdateStageExecution(ctx, st))

	got := svc.GetStageExecution(ctx, st.ExecutionID)
	require.NotNil(t, got)
	assert.Equal(t, models.StageStatusCompleted, got.Status)
	require.NotNil(t, got.DurationMs)
	assert.GreaterOrEqual(t, *got.DurationMs, int64(5000))
	assert.JSONEq(t, `{"summary":"done"}`, string(got.StageOutput))

	s := svc.GetSession(ctx, sessionID)
	require.NotNil(t, s.CurrentStageIndex)
	assert.Equal(t, 0, *s.CurrentStageIndex)
	assert.Equal(t, st.ExecutionID, s.CurrentStageID)

	assert.Nil(t, svc.GetStageExecution(ctx, "missing"))
}

func TestGetStageExecutionsNestsChildren(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	sessionID := createSession(t, svc, 0)

	first := createStage(t, svc, sessionID, 0, "DataCollector")
	parent, children := createParallelStage(t, svc, sessionID, 1, 3)

	stages := svc.GetStageExecutions(ctx, sessionID)
	require.Len(t, stages, 2)
	assert.Equal(t, first.ExecutionID, stages[0].ExecutionID)
	assert.Empty(t, stages[0].ParallelExecutions)
	assert.Equal(t, parent.ExecutionID, stages[1].ExecutionID)
	require.Len(t, stages[1].ParallelExecutions, 3)
	for i, child := range stages[1].ParallelExecutions {
		assert.Equal(t, children[i].ExecutionID, child.ExecutionID)
		assert.Equal(t, parent.ExecutionID, child.ParentStageExecutionID)
	}

	got := svc.GetParallelStageChildren(ctx, parent.ExecutionID)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].ParallelIndex)
	assert.Equal(t, 3, got[2].ParallelIndex)

	empty := svc.GetStageExecutions(ctx, "no-such-session")
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPausedStagesCancelCascade(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	sessionID := createSession(t, svc, 0)

	parent, children := createParallelStage(t, svc, sessionID, 0, 2)
	started := models.NowUs() - 60_000_000
	pausedAt := models.NowUs() - 30_000_000

	// Parent and one child paused with a timestamp; the other child paused
	// without one.
	for _, st := range []*models.StageExecution{parent, children[0]} {
		st.Status = models.StageStatusPaused
		st.StartedAtUs = &started
		st.PausedAtUs = &pausedAt
		st.CurrentIteration = ptr(30)
		st.PausedConversationState = json.RawMessage(`[{"role":"user","content":"check pods"}]`)
		require.True(t, svc.UpdateStageExecution(ctx, st))
	}
	children[1].Status = models.StageStatusPaused
	require.True(t, svc.UpdateStageExecution(ctx, children[1]))

	paused := svc.GetPausedStages(ctx, sessionID)
	assert.Len(t, paused, 3, "parents and children are flattened")

	before := models.NowUs()
	assert.Equal(t, 3, svc.CancelAllPausedStages(ctx, sessionID))

	got := svc.GetStageExecution(ctx, children[0].ExecutionID)
	assert.Equal(t, models.StageStatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAtUs)
	assert.Equal(t, pausedAt, *got.CompletedAtUs, "completed_at comes from paused_at")
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(30_000), *got.DurationMs)
	assert.JSONEq(t, `[{"role":"user","content":"check pods"}]`, string(got.PausedConversationState))

	got = svc.GetStageExecution(ctx, children[1].ExecutionID)
	assert.Equal(t, models.StageStatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAtUs)
	assert.GreaterOrEqual(t, *got.CompletedAtUs, before, "completed_at falls back to now")

	assert.Empty(t, svc.GetPausedStages(ctx, sessionID))
	assert.Zero(t, svc.CancelAllPausedStages(ctx, sessionID))
}

func TestGetSessionSummary(t *testing.T) {
	t.Run("uses stored session totals when all three are set", func(t *testing.T) {
		svc, _ := newSQLiteService(t)
		ctx := context.Background()
		sessionID := createSession(t, svc, 0)

		st := createStage(t, svc, sessionID, 0, "KubernetesAgent")
		st.StageInputTokens, st.StageOutputTokens, st.StageTotalTokens = ptr(int64(1)), ptr(int64(1)), ptr(int64(2))
		st.Status = models.StageStatusCompleted
		require.True(t, svc.UpdateStageExecution(ctx, st))
		require.True(t, svc.UpdateSessionTokens(ctx, sessionID, 100, 200, 300))

		stats := svc.GetSessionSummary(ctx, sessionID)
		require.NotNil(t, stats)
		assert.Equal(t, int64(100), stats.SessionInputTokens)
		assert.Equal(t, int64(200), stats.SessionOutputTokens)
		assert.Equal(t, int64(300), stats.SessionTotalTokens)
		assert.Equal(t, 1, stats.ChainStatistics.CompletedStages)
	})

	t.Run("derives totals from stages and children", func(t *testing.T) {
		svc, _ := newSQLiteService(t)
		ctx := context.Background()
		sessionID := createSession(t, svc, 0)

		single := createStage(t, svc, sessionID, 0, "DataCollector")
		single.StageInputTokens, single.StageOutputTokens, single.StageTotalTokens = ptr(int64(2)), ptr(int64(3)), ptr(int64(5))
		single.Status = models.StageStatusCompleted
		require.True(t, svc.UpdateStageExecution(ctx, single))

		parent, children := createParallelStage(t, svc, sessionID, 1, 2)
		for _, c := range children {
			c.StageInputTokens, c.StageOutputTokens, c.StageTotalTokens = ptr(int64(10)), ptr(int64(20)), ptr(int64(30))
			c.Status = models.StageStatusCompleted
			require.True(t, svc.UpdateStageExecution(ctx, c))
		}
		parent.Status = models.StageStatusFailed
		require.True(t, svc.UpdateStageExecution(ctx, parent))

		require.True(t, svc.StoreLLMInteraction(ctx, &models.LLMInteraction{
			SessionID: sessionID, StageExecutionID: single.ExecutionID, ModelName: "gemini-2.5-pro", Success: true,
		}))
		require.True(t, svc.StoreLLMInteraction(ctx, &models.LLMInteraction{
			SessionID: sessionID, StageExecutionID: single.ExecutionID, ModelName: "gemini-2.5-pro",
			Success: false, ErrorMessage: "rate limited",
		}))
		require.True(t, svc.StoreMCPInteraction(ctx, &models.MCPInteraction{
			SessionID: sessionID, StageExecutionID: single.ExecutionID, ServerName: "kubernetes-server",
			CommunicationType: models.MCPCommunicationToolCall, ToolName: "pods_list", Success: true,
		}))

		stats := svc.GetSessionSummary(ctx, sessionID)
		require.NotNil(t, stats)
		assert.Equal(t, int64(22), stats.SessionInputTokens)
		assert.Equal(t, int64(43), stats.SessionOutputTokens)
		assert.Equal(t, int64(65), stats.SessionTotalTokens)
		assert.Equal(t, 3, stats.TotalInteractions)
		assert.Equal(t, 2, stats.LLMInteractions)
		assert.Equal(t, 1, stats.MCPCommunications)
		assert.Equal(t, 1, stats.ErrorsCount)
		assert.Nil(t, stats.TotalDurationMs, "session still open")

		cs := stats.ChainStatistics
		assert.Equal(t, 2, cs.TotalStages)
		assert.Equal(t, 1, cs.CompletedStages)
		assert.Equal(t, 1, cs.FailedStages)
		assert.Equal(t, 1, cs.ParallelStages)
		assert.Equal(t, map[string]int{"DataCollector": 1, "KubernetesAgent": 1}, cs.StagesByAgent)
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, _ := newSQLiteService(t)
		assert.Nil(t, svc.GetSessionSummary(context.Background(), "missing"))
	})
}
