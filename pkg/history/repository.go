package history

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"strings"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// repository runs the SQL for one backend. Every method is a single attempt;
// retries happen in the op groups.
type repository struct {
	client *database.Client
}

func (r *repository) db() *stdsql.DB {
	return r.client.DB()
}

func (r *repository) sqlite() bool {
	return r.client.Driver() == database.DriverSQLite
}

func (r *repository) b() *entsql.DialectBuilder {
	return r.client.Builder()
}

// selectFrom builds "SELECT cols FROM table".
func (r *repository) selectFrom(table string, columns []string) *entsql.Selector {
	return r.b().Select(columns...).From(r.b().Table(table))
}

func (r *repository) exec(ctx context.Context, q querier, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) count(ctx context.Context, table string, where *entsql.Predicate) (int, error) {
	sel := r.b().Select(entsql.Count("*")).From(r.b().Table(table))
	if where != nil {
		sel.Where(where)
	}
	query, args := sel.Query()
	var n int
	if err := r.db().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repository) inTx(ctx context.Context, fn func(tx *stdsql.Tx) error) error {
	tx, err := r.db().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Sessions

func (r *repository) insertSession(ctx context.Context, s *models.Session) error {
	mcpSelection, err := marshalNullable(s.MCPSelection)
	if err != nil {
		return fmt.Errorf("failed to marshal mcp_selection: %w", err)
	}
	metadata, err := marshalNullable(s.SessionMetadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session_metadata: %w", err)
	}
	query, args := r.b().Insert(tableSessions).
		Columns("session_id", "alert_type", "agent_type", "chain_id", "chain_definition",
			"status", "started_at_us", "alert_data", "runbook_url", "author",
			"mcp_selection", "session_metadata").
		Values(s.ID, nullString(s.AlertType), s.AgentType, s.ChainID, nullJSON(s.ChainDefinition),
			string(s.Status), s.StartedAtUs, string(s.AlertData), nullString(s.RunbookURL), nullString(s.Author),
			mcpSelection, metadata).
		Query()
	_, err = r.db().ExecContext(ctx, query, args...)
	return err
}

func (r *repository) getSession(ctx context.Context, q querier, id string) (*models.Session, error) {
	query, args := r.selectFrom(tableSessions, sessionColumns).
		Where(entsql.EQ("session_id", id)).
		Query()
	s, err := scanSession(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, errNotFound
	}
	return s, err
}

// updateSessionStatus writes status only while the row is in one of from.
// It reports false when no row matched.
func (r *repository) updateSessionStatus(ctx context.Context, id string, from []models.SessionStatus, status models.SessionStatus, upd models.SessionStatusUpdate) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	u := r.b().Update(tableSessions).Set("status", string(status))
	if status.IsTerminal() {
		u.Set("completed_at_us", models.NowUs())
	}
	if upd.ErrorMessage != nil {
		u.Set("error_message", *upd.ErrorMessage)
	}
	if upd.FinalAnalysis != nil {
		u.Set("final_analysis", *upd.FinalAnalysis)
	}
	if upd.FinalAnalysisSummary != nil {
		u.Set("final_analysis_summary", *upd.FinalAnalysisSummary)
	}
	switch {
	case upd.PauseMetadata != nil:
		meta, err := marshalNullable(upd.PauseMetadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal pause_metadata: %w", err)
		}
		u.Set("pause_metadata", meta)
	case status != models.SessionStatusPaused:
		u.SetNull("pause_metadata")
	}
	query, args := u.Where(entsql.And(
		entsql.EQ("session_id", id),
		entsql.In("status", statusArgs(from)...),
	)).Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

// cancelResult is the outcome of a canceling transition.
type cancelResult struct {
	ok     bool
	status string
}

// toCanceling moves a non-terminal session to canceling. Already-canceling
// and terminal sessions are reported without a write.
func (r *repository) toCanceling(ctx context.Context, id string) (cancelResult, error) {
	for range 2 {
		current, err := r.getSession(ctx, r.db(), id)
		if errors.Is(err, errNotFound) {
			return cancelResult{status: StatusNotFound}, nil
		}
		if err != nil {
			return cancelResult{}, err
		}
		if res, done := classifyForCancel(current.Status); done {
			return res, nil
		}

		query, args := r.b().Update(tableSessions).
			Set("status", string(models.SessionStatusCanceling)).
			Where(entsql.And(
				entsql.EQ("session_id", id),
				entsql.In("status", statusArgs(cancelableStatuses)...),
			)).
			Query()
		n, err := r.exec(ctx, r.db(), query, args)
		if err != nil {
			return cancelResult{}, err
		}
		if n == 1 {
			return cancelResult{ok: true, status: string(models.SessionStatusCanceling)}, nil
		}
		// Lost a race with another writer; classify the new status.
	}
	current, err := r.getSession(ctx, r.db(), id)
	if errors.Is(err, errNotFound) {
		return cancelResult{status: StatusNotFound}, nil
	}
	if err != nil {
		return cancelResult{}, err
	}
	res, _ := classifyForCancel(current.Status)
	return res, nil
}

var cancelableStatuses = []models.SessionStatus{
	models.SessionStatusPending,
	models.SessionStatusInProgress,
	models.SessionStatusPaused,
}

func classifyForCancel(status models.SessionStatus) (cancelResult, bool) {
	switch {
	case status == models.SessionStatusCanceling:
		return cancelResult{ok: true, status: string(status)}, true
	case status.IsTerminal():
		return cancelResult{status: string(status)}, true
	}
	return cancelResult{status: string(status)}, false
}

func (r *repository) countByStatus(ctx context.Context, status models.SessionStatus) (int, error) {
	return r.count(ctx, tableSessions, entsql.EQ("status", string(status)))
}

// claimNext moves the oldest pending session to in_progress for podID.
// Returns errNotFound when the queue is empty.
func (r *repository) claimNext(ctx context.Context, podID string) (*models.Session, error) {
	if r.sqlite() {
		return r.claimNextSQLite(ctx, podID)
	}
	return r.claimNextPostgres(ctx, podID)
}

// SQLite serializes writers, so one conditional UPDATE with a subselect is
// atomic. The status guard makes a lost race update zero rows.
func (r *repository) claimNextSQLite(ctx context.Context, podID string) (*models.Session, error) {
	query := `UPDATE alert_sessions
SET status = ?, pod_id = ?, last_interaction_at = ?
WHERE session_id = (
    SELECT session_id FROM alert_sessions
    WHERE status = ?
    ORDER BY started_at_us ASC, session_id ASC
    LIMIT 1
) AND status = ?
RETURNING ` + strings.Join(sessionColumns, ", ")

	pending := string(models.SessionStatusPending)
	s, err := scanSession(r.db().QueryRowContext(ctx, query,
		string(models.SessionStatusInProgress), podID, models.NowUs(), pending, pending))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, errNotFound
	}
	return s, err
}

// Postgres locks the oldest unlocked pending row; concurrent claimers skip
// it and take the next one instead of blocking.
func (r *repository) claimNextPostgres(ctx context.Context, podID string) (*models.Session, error) {
	var claimed *models.Session
	err := r.inTx(ctx, func(tx *stdsql.Tx) error {
		sel := r.selectFrom(tableSessions, []string{"session_id"}).
			Where(entsql.EQ("status", string(models.SessionStatusPending)))
		sel.OrderBy(entsql.Asc(sel.C("started_at_us")), entsql.Asc(sel.C("session_id"))).
			Limit(1).
			ForUpdate(entsql.WithLockAction(entsql.SkipLocked))
		query, args := sel.Query()

		var id string
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			if errors.Is(err, stdsql.ErrNoRows) {
				return errNotFound
			}
			return fmt.Errorf("failed to select pending session: %w", err)
		}

		query, args = r.b().Update(tableSessions).
			Set("status", string(models.SessionStatusInProgress)).
			Set("pod_id", podID).
			Set("last_interaction_at", models.NowUs()).
			Where(entsql.And(
				entsql.EQ("session_id", id),
				entsql.EQ("status", string(models.SessionStatusPending)),
			)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to claim session: %w", err)
		}

		s, err := r.getSession(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to refetch claimed session: %w", err)
		}
		claimed = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repository) listSessions(ctx context.Context, f models.SessionFilters) (*models.SessionListResponse, error) {
	var preds []*entsql.Predicate
	if len(f.Statuses) > 0 {
		preds = append(preds, entsql.In("status", statusArgs(f.Statuses)...))
	}
	if f.AgentType != "" {
		preds = append(preds, entsql.EQ("agent_type", f.AgentType))
	}
	if f.AlertType != "" {
		preds = append(preds, entsql.EQ("alert_type", f.AlertType))
	}
	if f.Author != "" {
		preds = append(preds, entsql.EQ("author", f.Author))
	}
	if f.StartedAfterUs != nil {
		preds = append(preds, entsql.GTE("started_at_us", *f.StartedAfterUs))
	}
	if f.StartedBeforeUs != nil {
		preds = append(preds, entsql.LT("started_at_us", *f.StartedBeforeUs))
	}
	var where *entsql.Predicate
	if len(preds) > 0 {
		where = entsql.And(preds...)
	}

	total, err := r.count(ctx, tableSessions, where)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	sel := r.selectFrom(tableSessions, sessionColumns)
	if where != nil {
		sel.Where(where)
	}
	sel.OrderBy(entsql.Desc(sel.C("started_at_us")), entsql.Asc(sel.C("session_id"))).
		Limit(limit).
		Offset(f.Offset)
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sessions, err := scanAll(rows, scanSession)
	if err != nil {
		return nil, err
	}
	return &models.SessionListResponse{
		Sessions:   sessions,
		TotalCount: total,
		Limit:      limit,
		Offset:     f.Offset,
	}, nil
}

func (r *repository) sessionsByStatus(ctx context.Context, statuses []models.SessionStatus) ([]*models.Session, error) {
	sel := r.selectFrom(tableSessions, sessionColumns).
		Where(entsql.In("status", statusArgs(statuses)...))
	sel.OrderBy(entsql.Asc(sel.C("started_at_us")))
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanSession)
}

func (r *repository) updateCurrentStage(ctx context.Context, id string, index int, stageID string) (bool, error) {
	query, args := r.b().Update(tableSessions).
		Set("current_stage_index", index).
		Set("current_stage_id", nullString(stageID)).
		Set("last_interaction_at", models.NowUs()).
		Where(entsql.EQ("session_id", id)).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

func (r *repository) updateSessionTokens(ctx context.Context, id string, in, out, total int64) (bool, error) {
	query, args := r.b().Update(tableSessions).
		Set("session_input_tokens", in).
		Set("session_output_tokens", out).
		Set("session_total_tokens", total).
		Where(entsql.EQ("session_id", id)).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

func (r *repository) touchSession(ctx context.Context, id string) (bool, error) {
	query, args := r.b().Update(tableSessions).
		Set("last_interaction_at", models.NowUs()).
		Where(entsql.EQ("session_id", id)).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

func (r *repository) deleteSessionsStartedBefore(ctx context.Context, cutoffUs int64) (int, error) {
	query, args := r.b().Delete(tableSessions).
		Where(entsql.And(
			entsql.LT("started_at_us", cutoffUs),
			entsql.In("status", statusArgs(models.TerminalSessionStatuses)...),
		)).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return int(n), err
}

func statusArgs[S ~string](statuses []S) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
