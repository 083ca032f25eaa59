package history

import "context"

// TrackingOps maintain the liveness timestamps the orphan sweeps read.
type TrackingOps struct {
	infra *BaseInfra
}

// NewTrackingOps creates tracking operations on infra.
func NewTrackingOps(infra *BaseInfra) *TrackingOps {
	return &TrackingOps{infra: infra}
}

// RecordSessionInteraction bumps last_interaction_at of a session.
func (o *TrackingOps) RecordSessionInteraction(ctx context.Context, sessionID string) bool {
	touched, ok := RetryDatabaseOperation(ctx, o.infra, "record_session_interaction", func(ctx context.Context) (bool, error) {
		return o.infra.repo().touchSession(ctx, sessionID)
	})
	return ok && touched
}

// TouchChat bumps last_interaction_at of an owned chat.
func (o *TrackingOps) TouchChat(ctx context.Context, chatID string) bool {
	touched, ok := RetryDatabaseOperation(ctx, o.infra, "touch_chat", func(ctx context.Context) (bool, error) {
		return o.infra.repo().touchChat(ctx, chatID)
	})
	return ok && touched
}

// UpdateSessionTokens stores the denormalized token sums of a session.
func (o *TrackingOps) UpdateSessionTokens(ctx context.Context, sessionID string, input, output, total int64) bool {
	updated, ok := RetryDatabaseOperation(ctx, o.infra, "update_session_tokens", func(ctx context.Context) (bool, error) {
		return o.infra.repo().updateSessionTokens(ctx, sessionID, input, output, total)
	})
	return ok && updated
}
