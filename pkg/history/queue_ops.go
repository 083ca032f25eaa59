package history

import (
	"context"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// QueueOps are the primitives the claim worker runs against the shared
// queue.
type QueueOps struct {
	infra *BaseInfra
}

// NewQueueOps creates queue operations on infra.
func NewQueueOps(infra *BaseInfra) *QueueOps {
	return &QueueOps{infra: infra}
}

// ClaimNextPendingSession moves the oldest pending session to in_progress
// owned by podID and returns it. Two concurrent callers never receive the
// same session. Returns nil when the queue is empty or the claim failed.
func (o *QueueOps) ClaimNextPendingSession(ctx context.Context, podID string) *models.Session {
	s, _ := RetryDatabaseOperation(ctx, o.infra, "claim_next_pending_session", func(ctx context.Context) (*models.Session, error) {
		return o.infra.repo().claimNext(ctx, podID)
	}, TreatNoneAsSuccess())
	return s
}

// CountSessionsByStatus counts sessions across all pods. ok is false when
// the count could not be read.
func (o *QueueOps) CountSessionsByStatus(ctx context.Context, status models.SessionStatus) (count int, ok bool) {
	return RetryDatabaseOperation(ctx, o.infra, "count_sessions_by_status", func(ctx context.Context) (int, error) {
		return o.infra.repo().countByStatus(ctx, status)
	})
}
