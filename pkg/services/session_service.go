package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/tarsy-core/pkg/history"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// SessionStore is the persistence SessionService needs. history.Service
// satisfies it.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) *models.Session
	GetSessionSummary(ctx context.Context, sessionID string) *models.SessionStats
	UpdateSessionToCanceling(ctx context.Context, sessionID string) (bool, string)
	UpdateSessionStatusFrom(ctx context.Context, sessionID string, from []models.SessionStatus, status models.SessionStatus, upd models.SessionStatusUpdate) bool
	CancelAllPausedStages(ctx context.Context, sessionID string) int
}

// LocalCanceller cancels sessions running in this process.
// queue.SessionClaimWorker satisfies it.
type LocalCanceller interface {
	CancelSession(sessionID string) bool
}

var fromCanceling = []models.SessionStatus{models.SessionStatusCanceling}

// CancelResult describes what a cancel request did.
type CancelResult struct {
	SessionID       string               `json:"session_id"`
	Status          models.SessionStatus `json:"status"`
	CancelledStages int                  `json:"cancelled_stages,omitempty"`
	CancelledLocal  bool                 `json:"cancelled_local"`
}

// SessionService manages alert session lifecycle requests.
type SessionService struct {
	store     SessionStore
	canceller LocalCanceller
}

// NewSessionService creates a new SessionService. canceller may be nil
// when this process runs no claim worker.
func NewSessionService(store SessionStore, canceller LocalCanceller) *SessionService {
	return &SessionService{store: store, canceller: canceller}
}

// GetSession returns a session by id.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session := s.store.GetSession(ctx, sessionID)
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return session, nil
}

// GetSessionSummary returns the aggregated statistics of a session.
func (s *SessionService) GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	stats := s.store.GetSessionSummary(ctx, sessionID)
	if stats == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return stats, nil
}

// CancelSession requests cancellation. The session moves to canceling;
// sessions nobody is running (never claimed, or paused) are finished as
// cancelled right away, cascading to their paused stages. A session
// running on this pod is interrupted; one running elsewhere is stopped
// by its own pod. Repeated calls are safe.
func (s *SessionService) CancelSession(ctx context.Context, sessionID string) (*CancelResult, error) {
	ok, status := s.store.UpdateSessionToCanceling(ctx, sessionID)
	if !ok {
		switch status {
		case history.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		case history.StatusUnavailable:
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyFinished, status)
	}

	log := slog.With("session_id", sessionID)
	res := &CancelResult{SessionID: sessionID, Status: models.SessionStatusCanceling}

	session := s.store.GetSession(ctx, sessionID)
	if session == nil {
		return nil, ErrUnavailable
	}
	if session.Status != models.SessionStatusCanceling {
		// Already finalized by an earlier request or by its runner.
		res.Status = session.Status
		return res, nil
	}

	if s.canceller != nil && s.canceller.CancelSession(sessionID) {
		res.CancelledLocal = true
		log.Info("Cancelled session running on this pod")
		return res, nil
	}

	// pause_metadata survives the canceling transition.
	if session.PodID == "" || session.PauseMetadata != nil {
		res.CancelledStages = s.store.CancelAllPausedStages(ctx, sessionID)
		if !s.store.UpdateSessionStatusFrom(ctx, sessionID, fromCanceling, models.SessionStatusCancelled, models.SessionStatusUpdate{}) {
			if current := s.store.GetSession(ctx, sessionID); current != nil && current.Status != models.SessionStatusCanceling {
				res.Status = current.Status
				return res, nil
			}
			log.Error("Failed to finish cancelled session; it stays canceling")
			return res, nil
		}
		res.Status = models.SessionStatusCancelled
		log.Info("Session cancelled", "cancelled_stages", res.CancelledStages)
		return res, nil
	}

	log.Info("Session marked canceling", "pod_id", session.PodID)
	return res, nil
}
