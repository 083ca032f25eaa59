package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// Pause errors.
var (
	ErrStageNotFound   = errors.New("stage execution not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotActive       = errors.New("session is not in progress")
	ErrNotPaused       = errors.New("session is not paused")
	ErrPersistFailed   = errors.New("failed to persist pause state")
)

// PauseStore is the persistence PauseHandler needs. history.Service
// satisfies it.
type PauseStore interface {
	GetSession(ctx context.Context, sessionID string) *models.Session
	UpdateSessionStatusFrom(ctx context.Context, sessionID string, from []models.SessionStatus, status models.SessionStatus, upd models.SessionStatusUpdate) bool
	GetStageExecution(ctx context.Context, executionID string) *models.StageExecution
	UpdateStageExecution(ctx context.Context, st *models.StageExecution) bool
	GetPausedStages(ctx context.Context, sessionID string) []*models.StageExecution
}

var (
	fromInProgress = []models.SessionStatus{models.SessionStatusInProgress}
	fromPaused     = []models.SessionStatus{models.SessionStatusPaused}
)

// PauseHandler records loop outcomes on stage executions and moves
// sessions in and out of the paused state.
type PauseHandler struct {
	store PauseStore
}

// NewPauseHandler creates a handler over store.
func NewPauseHandler(store PauseStore) *PauseHandler {
	return &PauseHandler{store: store}
}

// HandleOutcome writes the outcome of a loop to its stage execution. A
// paused outcome also pauses the session. The returned error is the loop's
// own error for a failed outcome.
func (h *PauseHandler) HandleOutcome(ctx context.Context, executionID string, o *Outcome) error {
	switch o.Kind {
	case KindPaused:
		return h.Persist(ctx, o.Paused)
	case KindCompleted:
		output, err := json.Marshal(map[string]string{"final_answer": o.FinalAnswer})
		if err != nil {
			return fmt.Errorf("failed to encode stage output: %w", err)
		}
		return h.finishStage(ctx, executionID, models.StageStatusCompleted, func(st *models.StageExecution) {
			st.StageOutput = output
		})
	case KindFailed:
		if err := h.finishStage(ctx, executionID, models.StageStatusFailed, func(st *models.StageExecution) {
			st.ErrorMessage = o.Err.Error()
		}); err != nil {
			return errors.Join(o.Err, err)
		}
		return o.Err
	}
	return fmt.Errorf("unknown outcome kind %d", o.Kind)
}

func (h *PauseHandler) finishStage(ctx context.Context, executionID string, status models.StageStatus, apply func(*models.StageExecution)) error {
	st := h.store.GetStageExecution(ctx, executionID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrStageNotFound, executionID)
	}
	apply(st)
	st.Finish(status, models.NowUs())
	if !h.store.UpdateStageExecution(ctx, st) {
		return fmt.Errorf("failed to record stage %s as %s", executionID, status)
	}
	return nil
}

// Persist pauses the stage execution and its session, keeping the
// conversation so the loop can be resumed. The session must be in progress
// at the time of the session write; if a cancel got there first the stage
// is cancelled instead and ErrNotActive is returned.
func (h *PauseHandler) Persist(ctx context.Context, p *PausedState) error {
	log := slog.With("session_id", p.SessionID, "execution_id", p.ExecutionID)

	session := h.store.GetSession(ctx, p.SessionID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, p.SessionID)
	}
	if session.Status != models.SessionStatusInProgress {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, p.SessionID, session.Status)
	}
	st := h.store.GetStageExecution(ctx, p.ExecutionID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrStageNotFound, p.ExecutionID)
	}

	conv, err := json.Marshal(p.Conversation)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	now := models.NowUs()
	iteration := p.Iteration
	st.Status = models.StageStatusPaused
	st.PausedAtUs = &now
	st.PausedConversationState = conv
	st.CurrentIteration = &iteration
	if !h.store.UpdateStageExecution(ctx, st) {
		return fmt.Errorf("%w: stage %s", ErrPersistFailed, p.ExecutionID)
	}

	meta := &models.PauseMetadata{
		Reason:           models.PauseReasonMaxIterations,
		CurrentIteration: p.Iteration,
		Message:          fmt.Sprintf("Paused after reaching the iteration limit (%d iterations); resume to continue", p.Iteration),
		PausedAtUs:       now,
	}
	if !h.store.UpdateSessionStatusFrom(ctx, p.SessionID, fromInProgress, models.SessionStatusPaused, models.SessionStatusUpdate{PauseMetadata: meta}) {
		current := h.store.GetSession(ctx, p.SessionID)
		if current == nil || current.Status == models.SessionStatusInProgress {
			return fmt.Errorf("%w: session %s", ErrPersistFailed, p.SessionID)
		}
		// The session moved on (canceling) between the check and the write.
		st.PausedConversationState = nil
		st.Finish(models.StageStatusCancelled, models.NowUs())
		if !h.store.UpdateStageExecution(ctx, st) {
			log.Error("Failed to cancel stage of a session that left in_progress", "status", current.Status)
		}
		return fmt.Errorf("%w: %s is %s", ErrNotActive, p.SessionID, current.Status)
	}
	log.Info("Session paused", "iteration", p.Iteration, "messages", len(p.Conversation))
	return nil
}

// ResumeConversation reactivates every paused stage of a paused session,
// puts the session back in progress and returns the preserved loop state
// of each stage that carried a conversation, in stage order.
func (h *PauseHandler) ResumeConversation(ctx context.Context, sessionID string) ([]*PausedState, error) {
	session := h.store.GetSession(ctx, sessionID)
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status != models.SessionStatusPaused {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPaused, sessionID, session.Status)
	}

	paused := h.store.GetPausedStages(ctx, sessionID)
	var resumed []*PausedState
	for _, st := range paused {
		if len(st.PausedConversationState) == 0 {
			continue
		}
		state := &PausedState{SessionID: sessionID, ExecutionID: st.ExecutionID, StageName: st.StageName}
		if err := json.Unmarshal(st.PausedConversationState, &state.Conversation); err != nil {
			return nil, fmt.Errorf("failed to decode conversation of stage %s: %w", st.ExecutionID, err)
		}
		if st.CurrentIteration != nil {
			state.Iteration = *st.CurrentIteration
		}
		resumed = append(resumed, state)
	}
	if len(resumed) == 0 {
		return nil, fmt.Errorf("no paused conversation found for session %s", sessionID)
	}

	// Stages are only touched once the session write went through.
	if !h.store.UpdateSessionStatusFrom(ctx, sessionID, fromPaused, models.SessionStatusInProgress, models.SessionStatusUpdate{}) {
		if current := h.store.GetSession(ctx, sessionID); current != nil && current.Status != models.SessionStatusPaused {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotPaused, sessionID, current.Status)
		}
		return nil, fmt.Errorf("failed to resume session %s", sessionID)
	}

	// Parents of paused parallel children carry no conversation but are
	// reactivated with them.
	for _, st := range paused {
		st.Status = models.StageStatusActive
		st.PausedAtUs = nil
		st.PausedConversationState = nil
		if !h.store.UpdateStageExecution(ctx, st) {
			return nil, fmt.Errorf("failed to reactivate stage %s", st.ExecutionID)
		}
	}
	slog.Info("Session resumed", "session_id", sessionID, "stages", len(resumed))
	return resumed, nil
}
