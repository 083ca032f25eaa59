package history

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

func (r *repository) insertStage(ctx context.Context, st *models.StageExecution) error {
	parallelType := st.ParallelType
	if parallelType == "" {
		parallelType = models.ParallelTypeSingle
	}
	status := st.Status
	if status == "" {
		status = models.StageStatusPending
	}
	query, args := r.b().Insert(tableStages).
		Columns("execution_id", "session_id", "parent_stage_execution_id", "parallel_index",
			"parallel_type", "expected_parallel_count", "stage_index", "stage_id",
			"stage_name", "agent", "status", "started_at_us", "chat_id", "chat_user_message_id").
		Values(st.ExecutionID, st.SessionID, nullString(st.ParentStageExecutionID), st.ParallelIndex,
			string(parallelType), nullInt(st.ExpectedParallelCount), st.StageIndex, st.StageID,
			st.StageName, st.Agent, string(status), nullInt64(st.StartedAtUs),
			nullString(st.ChatID), nullString(st.ChatUserMessageID)).
		Query()
	_, err := r.db().ExecContext(ctx, query, args...)
	return err
}

// updateStage writes every mutable column of st.
func (r *repository) updateStage(ctx context.Context, st *models.StageExecution) (bool, error) {
	query, args := r.b().Update(tableStages).
		Set("status", string(st.Status)).
		Set("started_at_us", nullInt64(st.StartedAtUs)).
		Set("completed_at_us", nullInt64(st.CompletedAtUs)).
		Set("duration_ms", nullInt64(st.DurationMs)).
		Set("stage_output", nullJSON(st.StageOutput)).
		Set("error_message", nullString(st.ErrorMessage)).
		Set("current_iteration", nullInt(st.CurrentIteration)).
		Set("paused_at_us", nullInt64(st.PausedAtUs)).
		Set("paused_conversation_state", nullJSON(st.PausedConversationState)).
		Set("stage_input_tokens", nullInt64(st.StageInputTokens)).
		Set("stage_output_tokens", nullInt64(st.StageOutputTokens)).
		Set("stage_total_tokens", nullInt64(st.StageTotalTokens)).
		Where(entsql.EQ("execution_id", st.ExecutionID)).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

func (r *repository) getStage(ctx context.Context, id string) (*models.StageExecution, error) {
	query, args := r.selectFrom(tableStages, stageColumns).
		Where(entsql.EQ("execution_id", id)).
		Query()
	st, err := scanStage(r.db().QueryRowContext(ctx, query, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, errNotFound
	}
	return st, err
}

// stagesFlat returns every stage row of a session, parents and children,
// ordered by stage index and parallel index.
func (r *repository) stagesFlat(ctx context.Context, sessionID string) ([]*models.StageExecution, error) {
	sel := r.selectFrom(tableStages, stageColumns).
		Where(entsql.EQ("session_id", sessionID))
	sel.OrderBy(
		entsql.Asc(sel.C("stage_index")),
		entsql.Asc(sel.C("parallel_index")),
		entsql.Asc(sel.C("execution_id")),
	)
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanStage)
}

// stagesTree returns top-level stages with their children nested in
// ParallelExecutions. Children never nest deeper than one level.
func (r *repository) stagesTree(ctx context.Context, sessionID string) ([]*models.StageExecution, error) {
	flat, err := r.stagesFlat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return nestStages(flat), nil
}

func nestStages(flat []*models.StageExecution) []*models.StageExecution {
	byID := make(map[string]*models.StageExecution, len(flat))
	top := make([]*models.StageExecution, 0, len(flat))
	for _, st := range flat {
		if !st.IsParallelChild() {
			byID[st.ExecutionID] = st
			top = append(top, st)
		}
	}
	for _, st := range flat {
		if !st.IsParallelChild() {
			continue
		}
		if parent, ok := byID[st.ParentStageExecutionID]; ok {
			parent.ParallelExecutions = append(parent.ParallelExecutions, st)
		}
	}
	return top
}

func (r *repository) stageChildren(ctx context.Context, parentID string) ([]*models.StageExecution, error) {
	sel := r.selectFrom(tableStages, stageColumns).
		Where(entsql.EQ("parent_stage_execution_id", parentID))
	sel.OrderBy(entsql.Asc(sel.C("parallel_index")))
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanStage)
}

// cancelPausedStages moves every paused stage of a session, children
// included, to cancelled. completed_at_us is taken from paused_at_us when
// set.
func (r *repository) cancelPausedStages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.inTx(ctx, func(tx *stdsql.Tx) error {
		sel := r.selectFrom(tableStages, stageColumns).
			Where(entsql.And(
				entsql.EQ("session_id", sessionID),
				entsql.EQ("status", string(models.StageStatusPaused)),
			))
		query, args := sel.Query()
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		paused, err := scanAll(rows, scanStage)
		if err != nil {
			return err
		}

		now := models.NowUs()
		for _, st := range paused {
			completedAt := now
			if st.PausedAtUs != nil {
				completedAt = *st.PausedAtUs
			}
			st.Finish(models.StageStatusCancelled, completedAt)
			query, args := r.b().Update(tableStages).
				Set("status", string(st.Status)).
				Set("completed_at_us", completedAt).
				Set("duration_ms", nullInt64(st.DurationMs)).
				Where(entsql.And(
					entsql.EQ("execution_id", st.ExecutionID),
					entsql.EQ("status", string(models.StageStatusPaused)),
				)).
				Query()
			n, err := r.exec(ctx, tx, query, args)
			if err != nil {
				return fmt.Errorf("failed to cancel stage %s: %w", st.ExecutionID, err)
			}
			count += int(n)
		}
		return nil
	})
	return count, err
}

// failActiveStages marks the pending and active stages of the given
// sessions failed, each with a duration from its own start.
func (r *repository) failActiveStages(ctx context.Context, q querier, sessionIDs []string, message string, now int64) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	ids := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		ids[i] = id
	}
	query, args := r.selectFrom(tableStages, stageColumns).
		Where(entsql.And(
			entsql.In("session_id", ids...),
			entsql.In("status", string(models.StageStatusPending), string(models.StageStatusActive)),
		)).
		Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	stages, err := scanAll(rows, scanStage)
	if err != nil {
		return 0, err
	}

	var count int
	for _, st := range stages {
		st.Finish(models.StageStatusFailed, now)
		query, args := r.b().Update(tableStages).
			Set("status", string(st.Status)).
			Set("completed_at_us", now).
			Set("duration_ms", nullInt64(st.DurationMs)).
			Set("error_message", message).
			Where(entsql.And(
				entsql.EQ("execution_id", st.ExecutionID),
				entsql.In("status", string(models.StageStatusPending), string(models.StageStatusActive)),
			)).
			Query()
		n, err := r.exec(ctx, q, query, args)
		if err != nil {
			return count, err
		}
		count += int(n)
	}
	return count, nil
}
