package history

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// Status strings returned by UpdateSessionToCanceling besides real statuses.
const (
	StatusNotFound    = "not_found"
	StatusUnavailable = "unavailable"
)

// SessionOps covers session rows.
type SessionOps struct {
	infra *BaseInfra
}

// NewSessionOps creates session operations on infra.
func NewSessionOps(infra *BaseInfra) *SessionOps {
	return &SessionOps{infra: infra}
}

// CreateSession inserts a pending session. It is attempted exactly once.
func (o *SessionOps) CreateSession(ctx context.Context, cc *models.ChainContext, chain *models.ChainDefinition) bool {
	session, err := models.NewSession(cc, chain)
	if err != nil {
		slog.Error("Invalid session submission", "error", err)
		return false
	}
	_, ok := RetryDatabaseOperation(ctx, o.infra, opCreateSession, func(ctx context.Context) (bool, error) {
		return true, o.infra.repo().insertSession(ctx, session)
	})
	return ok
}

// UpdateSessionStatus sets status and the non-nil fields of upd. The write
// only applies while the stored status may move to status, so terminal
// sessions are never rewritten. Terminal statuses stamp completed_at_us;
// leaving paused clears pause_metadata.
func (o *SessionOps) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, upd models.SessionStatusUpdate) bool {
	return o.UpdateSessionStatusFrom(ctx, sessionID, models.PredecessorsOf(status), status, upd)
}

// UpdateSessionStatusFrom is UpdateSessionStatus restricted to sessions
// currently in one of from. It returns false when the stored status was
// something else by the time of the write.
func (o *SessionOps) UpdateSessionStatusFrom(ctx context.Context, sessionID string, from []models.SessionStatus, status models.SessionStatus, upd models.SessionStatusUpdate) bool {
	allowed := make([]models.SessionStatus, 0, len(from))
	for _, f := range from {
		if models.CanTransition(f, status) {
			allowed = append(allowed, f)
		}
	}
	if len(allowed) == 0 {
		slog.Warn("Rejected session status write with no valid predecessor",
			"session_id", sessionID, "status", status, "from", from)
		return false
	}

	updated, ok := RetryDatabaseOperation(ctx, o.infra, "update_session_status", func(ctx context.Context) (bool, error) {
		return o.infra.repo().updateSessionStatus(ctx, sessionID, allowed, status, upd)
	})
	if ok && !updated {
		slog.Info("Session status write skipped, stored status does not allow it",
			"session_id", sessionID, "status", status, "from", allowed)
	}
	return ok && updated
}

// GetSession returns nil when the session does not exist or the lookup
// failed.
func (o *SessionOps) GetSession(ctx context.Context, sessionID string) *models.Session {
	s, _ := RetryDatabaseOperation(ctx, o.infra, "get_session", func(ctx context.Context) (*models.Session, error) {
		return o.infra.repo().getSession(ctx, o.infra.Client().DB(), sessionID)
	}, TreatNoneAsSuccess())
	return s
}

// UpdateSessionToCanceling atomically moves a live session to canceling.
// It returns (true, "canceling") when the session is or already was
// canceling, (false, status) for terminal sessions and (false, "not_found")
// for unknown ids. Only the first call writes.
func (o *SessionOps) UpdateSessionToCanceling(ctx context.Context, sessionID string) (bool, string) {
	res, ok := RetryDatabaseOperation(ctx, o.infra, "update_session_to_canceling", func(ctx context.Context) (cancelResult, error) {
		return o.infra.repo().toCanceling(ctx, sessionID)
	})
	if !ok {
		return false, StatusUnavailable
	}
	return res.ok, res.status
}

// ListSessions returns a filtered page of sessions, newest first.
func (o *SessionOps) ListSessions(ctx context.Context, filters models.SessionFilters) *models.SessionListResponse {
	resp, _ := RetryDatabaseOperation(ctx, o.infra, "list_sessions", func(ctx context.Context) (*models.SessionListResponse, error) {
		return o.infra.repo().listSessions(ctx, filters)
	})
	return resp
}

// GetActiveSessions returns in-progress and canceling sessions across all
// pods, oldest first.
func (o *SessionOps) GetActiveSessions(ctx context.Context) []*models.Session {
	sessions, _ := RetryDatabaseOperation(ctx, o.infra, "get_active_sessions", func(ctx context.Context) ([]*models.Session, error) {
		return o.infra.repo().sessionsByStatus(ctx, []models.SessionStatus{
			models.SessionStatusInProgress,
			models.SessionStatusCanceling,
		})
	})
	return sessions
}

// GetSessionSummary aggregates counts, duration and token usage. Stored
// session token sums are used when all three are set; otherwise they are
// re-derived from the top-level stages.
func (o *SessionOps) GetSessionSummary(ctx context.Context, sessionID string) *models.SessionStats {
	stats, _ := RetryDatabaseOperation(ctx, o.infra, "get_session_summary", func(ctx context.Context) (*models.SessionStats, error) {
		repo := o.infra.repo()
		session, err := repo.getSession(ctx, repo.db(), sessionID)
		if err != nil {
			return nil, err
		}
		stages, err := repo.stagesTree(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		llm, mcp, failed, err := repo.interactionCounts(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return buildSessionStats(session, stages, llm, mcp, failed), nil
	}, TreatNoneAsSuccess())
	return stats
}

func buildSessionStats(session *models.Session, stages []*models.StageExecution, llm, mcp, failed int) *models.SessionStats {
	stats := &models.SessionStats{
		TotalInteractions: llm + mcp,
		LLMInteractions:   llm,
		MCPCommunications: mcp,
		ErrorsCount:       failed,
		TotalDurationMs:   session.DurationMs(),
		ChainStatistics: &models.ChainStatistics{
			TotalStages:   len(stages),
			StagesByAgent: make(map[string]int),
		},
	}

	if session.SessionInputTokens != nil && session.SessionOutputTokens != nil && session.SessionTotalTokens != nil {
		stats.SessionInputTokens = *session.SessionInputTokens
		stats.SessionOutputTokens = *session.SessionOutputTokens
		stats.SessionTotalTokens = *session.SessionTotalTokens
	} else {
		for _, st := range stages {
			in, out, total := stageTokens(st)
			stats.SessionInputTokens += in
			stats.SessionOutputTokens += out
			stats.SessionTotalTokens += total
		}
	}

	cs := stats.ChainStatistics
	for _, st := range stages {
		switch st.Status {
		case models.StageStatusCompleted:
			cs.CompletedStages++
		case models.StageStatusFailed:
			cs.FailedStages++
		}
		if st.ParallelType != "" && st.ParallelType != models.ParallelTypeSingle {
			cs.ParallelStages++
		}
		cs.StagesByAgent[st.Agent]++
	}
	return stats
}

// stageTokens returns a stage's token sums, summing its children when the
// parent has none recorded.
func stageTokens(st *models.StageExecution) (in, out, total int64) {
	if st.StageTotalTokens != nil {
		return deref(st.StageInputTokens), deref(st.StageOutputTokens), *st.StageTotalTokens
	}
	for _, child := range st.ParallelExecutions {
		ci, co, ct := stageTokens(child)
		in += ci
		out += co
		total += ct
	}
	return in, out, total
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
