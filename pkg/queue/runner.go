package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
)

// SessionRunner wraps a ProcessCallback with the per-session timeout, the
// liveness heartbeat and the terminal status write. Whatever the callback
// does, the session does not stay IN_PROGRESS once Process returns.
type SessionRunner struct {
	store   SessionStore
	config  *config.QueueConfig
	process ProcessCallback
	metrics *telemetry.Metrics
}

// NewSessionRunner creates a runner around process. metrics may be nil.
func NewSessionRunner(store SessionStore, cfg *config.QueueConfig, process ProcessCallback, metrics *telemetry.Metrics) *SessionRunner {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &SessionRunner{
		store:   store,
		config:  cfg,
		process: process,
		metrics: metrics,
	}
}

// Process implements ProcessCallback.
func (r *SessionRunner) Process(ctx context.Context, sessionID string, cc *models.ChainContext) error {
	log := slog.With("session_id", sessionID)

	sessionCtx, cancelSession := context.WithTimeout(ctx, r.config.SessionTimeout)
	defer cancelSession()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(sessionCtx)
	defer cancelHeartbeat()
	go r.runHeartbeat(heartbeatCtx, sessionID, cancelSession)

	procErr := r.invoke(sessionCtx, sessionID, cc)
	cancelHeartbeat()

	// Session ctx may be done; the terminal write must still go through.
	writeCtx := context.WithoutCancel(ctx)
	status, message := r.terminalStatus(writeCtx, sessionCtx, sessionID, procErr)
	if status == "" {
		log.Info("Session left in its recorded state", "error", procErr)
		return procErr
	}

	upd := models.SessionStatusUpdate{}
	if message != "" {
		upd.ErrorMessage = &message
	}
	if !r.store.UpdateSessionStatus(writeCtx, sessionID, status, upd) {
		log.Error("Failed to record terminal session status", "status", status)
		return errors.Join(procErr, fmt.Errorf("failed to record terminal status %s", status))
	}
	r.metrics.SessionOutcomes.Add(writeCtx, 1, metric.WithAttributes(attribute.String("status", string(status))))

	log.Info("Session processing complete", "status", status)
	return procErr
}

// invoke calls the processor, converting a panic into an error.
func (r *SessionRunner) invoke(ctx context.Context, sessionID string, cc *models.ChainContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Session processor panicked", "session_id", sessionID, "panic", rec)
			err = fmt.Errorf("session processor panicked: %v", rec)
		}
	}()
	return r.process(ctx, sessionID, cc)
}

// terminalStatus decides the status to write. An empty status means the
// stored state already settles the session (terminal or paused), or could
// not be read; the inactivity sweep reconciles the latter.
func (r *SessionRunner) terminalStatus(ctx, sessionCtx context.Context, sessionID string, procErr error) (models.SessionStatus, string) {
	s := r.store.GetSession(ctx, sessionID)
	if s == nil {
		slog.Error("Could not read session before recording its outcome, leaving it as stored",
			"session_id", sessionID, "error", procErr)
		return "", ""
	}
	current := s.Status

	switch {
	case current.IsTerminal(), current == models.SessionStatusPaused:
		return "", ""
	case current == models.SessionStatusCanceling:
		return models.SessionStatusCancelled, ""
	case errors.Is(sessionCtx.Err(), context.DeadlineExceeded):
		return models.SessionStatusTimedOut, fmt.Sprintf("Session timed out after %s", r.config.SessionTimeout)
	case procErr != nil:
		return models.SessionStatusFailed, procErr.Error()
	case sessionCtx.Err() != nil:
		return models.SessionStatusFailed, "Session processing was interrupted"
	}
	return models.SessionStatusCompleted, ""
}

// runHeartbeat periodically refreshes last_interaction_at so the
// inactivity sweep leaves the session alone. A session moved to canceling
// by another pod is cancelled here.
func (r *SessionRunner) runHeartbeat(ctx context.Context, sessionID string, cancelSession context.CancelFunc) {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.store.RecordSessionInteraction(ctx, sessionID) {
				slog.Warn("Heartbeat update failed", "session_id", sessionID)
			}
			if s := r.store.GetSession(ctx, sessionID); s != nil && s.Status == models.SessionStatusCanceling {
				slog.Info("Session marked canceling, stopping processing", "session_id", sessionID)
				cancelSession()
				return
			}
		}
	}
}
