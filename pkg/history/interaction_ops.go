package history

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// InteractionOps records the write-once LLM and MCP audit rows.
type InteractionOps struct {
	infra *BaseInfra
}

// NewInteractionOps creates interaction operations on infra.
func NewInteractionOps(infra *BaseInfra) *InteractionOps {
	return &InteractionOps{infra: infra}
}

// StoreLLMInteraction inserts in and heartbeats its session.
func (o *InteractionOps) StoreLLMInteraction(ctx context.Context, in *models.LLMInteraction) bool {
	if in.InteractionID == "" {
		in.InteractionID = uuid.New().String()
	}
	if in.TimestampUs == 0 {
		in.TimestampUs = models.NowUs()
	}
	_, ok := RetryDatabaseOperation(ctx, o.infra, "store_llm_interaction", func(ctx context.Context) (bool, error) {
		repo := o.infra.repo()
		if err := repo.insertLLMInteraction(ctx, in); err != nil {
			return false, err
		}
		touchAfterInsert(ctx, repo, in.SessionID)
		return true, nil
	})
	return ok
}

// StoreMCPInteraction inserts in and heartbeats its session.
func (o *InteractionOps) StoreMCPInteraction(ctx context.Context, in *models.MCPInteraction) bool {
	if in.CommunicationID == "" {
		in.CommunicationID = uuid.New().String()
	}
	if in.TimestampUs == 0 {
		in.TimestampUs = models.NowUs()
	}
	_, ok := RetryDatabaseOperation(ctx, o.infra, "store_mcp_interaction", func(ctx context.Context) (bool, error) {
		repo := o.infra.repo()
		if err := repo.insertMCPInteraction(ctx, in); err != nil {
			return false, err
		}
		touchAfterInsert(ctx, repo, in.SessionID)
		return true, nil
	})
	return ok
}

// GetLLMInteractions returns a session's LLM rows in timestamp order.
func (o *InteractionOps) GetLLMInteractions(ctx context.Context, sessionID string) []*models.LLMInteraction {
	rows, _ := RetryDatabaseOperation(ctx, o.infra, "get_llm_interactions", func(ctx context.Context) ([]*models.LLMInteraction, error) {
		return o.infra.repo().llmInteractions(ctx, sessionID)
	})
	return rows
}

// GetMCPInteractions returns a session's MCP rows in timestamp order.
func (o *InteractionOps) GetMCPInteractions(ctx context.Context, sessionID string) []*models.MCPInteraction {
	rows, _ := RetryDatabaseOperation(ctx, o.infra, "get_mcp_interactions", func(ctx context.Context) ([]*models.MCPInteraction, error) {
		return o.infra.repo().mcpInteractions(ctx, sessionID)
	})
	return rows
}

// touchAfterInsert heartbeats the session once its audit row is stored. A
// failure here must not turn the insert into a retry.
func touchAfterInsert(ctx context.Context, repo *repository, sessionID string) {
	if _, err := repo.touchSession(ctx, sessionID); err != nil {
		slog.Warn("Failed to update session heartbeat", "session_id", sessionID, "error", err)
	}
}
