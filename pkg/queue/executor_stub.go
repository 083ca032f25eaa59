package queue

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// StubProcessor is the processor used when no agent runtime is attached.
// It returns immediately; the runner then completes the session.
type StubProcessor struct{}

// NewStubProcessor creates a new stub processor.
func NewStubProcessor() *StubProcessor {
	return &StubProcessor{}
}

// Process implements ProcessCallback.
func (p *StubProcessor) Process(ctx context.Context, sessionID string, cc *models.ChainContext) error {
	var chainID, alertType string
	if cc != nil {
		chainID = cc.ChainID
		alertType = cc.AlertType
	}
	slog.Info("Stub processor: session processing (no-op)",
		"session_id", sessionID,
		"chain_id", chainID,
		"alert_type", alertType,
	)
	return ctx.Err()
}
