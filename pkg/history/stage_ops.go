package history

import (
	"context"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// StageOps covers stage execution rows.
type StageOps struct {
	infra *BaseInfra
}

// NewStageOps creates stage operations on infra.
func NewStageOps(infra *BaseInfra) *StageOps {
	return &StageOps{infra: infra}
}

// CreateStageExecution inserts st, assigning an execution id when empty.
// Returns the execution id, or "" on failure.
func (o *StageOps) CreateStageExecution(ctx context.Context, st *models.StageExecution) string {
	if st.ExecutionID == "" {
		st.ExecutionID = uuid.New().String()
	}
	if st.Status == "" {
		st.Status = models.StageStatusPending
	}
	_, ok := RetryDatabaseOperation(ctx, o.infra, "create_stage_execution", func(ctx context.Context) (bool, error) {
		return true, o.infra.repo().insertStage(ctx, st)
	})
	if !ok {
		return ""
	}
	return st.ExecutionID
}

// UpdateStageExecution writes the mutable fields of st.
func (o *StageOps) UpdateStageExecution(ctx context.Context, st *models.StageExecution) bool {
	updated, ok := RetryDatabaseOperation(ctx, o.infra, "update_stage_execution", func(ctx context.Context) (bool, error) {
		return o.infra.repo().updateStage(ctx, st)
	})
	return ok && updated
}

// UpdateSessionCurrentStage records which stage the session is running.
func (o *StageOps) UpdateSessionCurrentStage(ctx context.Context, sessionID string, stageIndex int, stageID string) bool {
	updated, ok := RetryDatabaseOperation(ctx, o.infra, "update_session_current_stage", func(ctx context.Context) (bool, error) {
		return o.infra.repo().updateCurrentStage(ctx, sessionID, stageIndex, stageID)
	})
	return ok && updated
}

// GetStageExecution returns nil when the stage does not exist or the lookup
// failed.
func (o *StageOps) GetStageExecution(ctx context.Context, executionID string) *models.StageExecution {
	st, _ := RetryDatabaseOperation(ctx, o.infra, "get_stage_execution", func(ctx context.Context) (*models.StageExecution, error) {
		return o.infra.repo().getStage(ctx, executionID)
	}, TreatNoneAsSuccess())
	return st
}

// GetStageExecutions returns the top-level stages of a session in chain
// order, each with its parallel children in ParallelExecutions.
func (o *StageOps) GetStageExecutions(ctx context.Context, sessionID string) []*models.StageExecution {
	stages, _ := RetryDatabaseOperation(ctx, o.infra, "get_stage_executions", func(ctx context.Context) ([]*models.StageExecution, error) {
		return o.infra.repo().stagesTree(ctx, sessionID)
	})
	return stages
}

// GetParallelStageChildren returns the children of a parent stage ordered by
// parallel index.
func (o *StageOps) GetParallelStageChildren(ctx context.Context, parentExecutionID string) []*models.StageExecution {
	children, _ := RetryDatabaseOperation(ctx, o.infra, "get_parallel_stage_children", func(ctx context.Context) ([]*models.StageExecution, error) {
		return o.infra.repo().stageChildren(ctx, parentExecutionID)
	})
	return children
}

// GetPausedStages returns every paused stage of a session, parents and
// children alike, as a flat list.
func (o *StageOps) GetPausedStages(ctx context.Context, sessionID string) []*models.StageExecution {
	stages, _ := RetryDatabaseOperation(ctx, o.infra, "get_paused_stages", func(ctx context.Context) ([]*models.StageExecution, error) {
		flat, err := o.infra.repo().stagesFlat(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		paused := make([]*models.StageExecution, 0)
		for _, st := range flat {
			if st.Status == models.StageStatusPaused {
				paused = append(paused, st)
			}
		}
		return paused, nil
	})
	return stages
}

// CancelAllPausedStages cancels every paused stage of a session and returns
// how many were cancelled.
func (o *StageOps) CancelAllPausedStages(ctx context.Context, sessionID string) int {
	n, _ := RetryDatabaseOperation(ctx, o.infra, "cancel_all_paused_stages", func(ctx context.Context) (int, error) {
		return o.infra.repo().cancelPausedStages(ctx, sessionID)
	})
	return n
}
