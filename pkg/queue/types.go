// Package queue claims pending sessions and runs them on this pod.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// Sentinel errors for a claim loop iteration. Both mean "sleep and retry".
var (
	// ErrNoSessionsAvailable indicates no pending sessions are in the queue.
	ErrNoSessionsAvailable = errors.New("no sessions available")

	// ErrAtCapacity indicates the global concurrent session limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// ProcessCallback runs a claimed session to completion. The context is
// cancelled when the session is cancelled on this pod or the pod shuts down.
type ProcessCallback func(ctx context.Context, sessionID string, cc *models.ChainContext) error

// SessionStore is the subset of the history service used by the queue.
type SessionStore interface {
	CountSessionsByStatus(ctx context.Context, status models.SessionStatus) (int, bool)
	ClaimNextPendingSession(ctx context.Context, podID string) *models.Session
	GetSession(ctx context.Context, sessionID string) *models.Session
	UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, upd models.SessionStatusUpdate) bool
	RecordSessionInteraction(ctx context.Context, sessionID string) bool
}

// WorkerState is the claim loop lifecycle state.
type WorkerState string

// Worker states.
const (
	WorkerStateStopped  WorkerState = "stopped"
	WorkerStateRunning  WorkerState = "running"
	WorkerStateStopping WorkerState = "stopping"
)

// WorkerHealth contains health information for the claim worker.
type WorkerHealth struct {
	PodID               string      `json:"pod_id"`
	State               WorkerState `json:"state"`
	MaxGlobalConcurrent int         `json:"max_global_concurrent"`
	SessionsClaimed     int         `json:"sessions_claimed"`
	DispatchFailures    int         `json:"dispatch_failures"`
	InFlight            int         `json:"in_flight"`
	InFlightSessionIDs  []string    `json:"in_flight_session_ids,omitempty"`
	LastClaimAt         time.Time   `json:"last_claim_at,omitzero"`
}
