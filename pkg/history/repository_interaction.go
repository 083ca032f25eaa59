package history

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

func (r *repository) insertLLMInteraction(ctx context.Context, in *models.LLMInteraction) error {
	interactionType := in.InteractionType
	if interactionType == "" {
		interactionType = models.LLMInteractionTypeInvestigation
	}
	conversation := nullJSON(in.Conversation)
	if conversation == nil {
		conversation = "[]"
	}
	query, args := r.b().Insert(tableLLM).
		Columns(llmColumns...).
		Values(in.InteractionID, in.SessionID, nullString(in.StageExecutionID), in.TimestampUs,
			in.DurationMs, in.Success, nullString(in.ErrorMessage), in.ModelName, nullString(in.Provider),
			interactionType, conversation, nullInt64(in.InputTokens), nullInt64(in.OutputTokens), nullInt64(in.TotalTokens)).
		Query()
	_, err := r.db().ExecContext(ctx, query, args...)
	return err
}

func (r *repository) insertMCPInteraction(ctx context.Context, in *models.MCPInteraction) error {
	query, args := r.b().Insert(tableMCP).
		Columns(mcpColumns...).
		Values(in.CommunicationID, in.SessionID, nullString(in.StageExecutionID), in.TimestampUs,
			in.DurationMs, in.Success, nullString(in.ErrorMessage), in.ServerName, in.CommunicationType,
			nullString(in.ToolName), nullJSON(in.ToolArguments), nullJSON(in.ToolResult), nullJSON(in.AvailableTools)).
		Query()
	_, err := r.db().ExecContext(ctx, query, args...)
	return err
}

func (r *repository) llmInteractions(ctx context.Context, sessionID string) ([]*models.LLMInteraction, error) {
	sel := r.selectFrom(tableLLM, llmColumns).Where(entsql.EQ("session_id", sessionID))
	sel.OrderBy(entsql.Asc(sel.C("timestamp_us")), entsql.Asc(sel.C("interaction_id")))
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanLLMInteraction)
}

func (r *repository) mcpInteractions(ctx context.Context, sessionID string) ([]*models.MCPInteraction, error) {
	sel := r.selectFrom(tableMCP, mcpColumns).Where(entsql.EQ("session_id", sessionID))
	sel.OrderBy(entsql.Asc(sel.C("timestamp_us")), entsql.Asc(sel.C("communication_id")))
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanMCPInteraction)
}

// interactionCounts returns the number of LLM rows, MCP rows and failed rows
// of either kind for a session.
func (r *repository) interactionCounts(ctx context.Context, sessionID string) (llm, mcp, failed int, err error) {
	if llm, err = r.count(ctx, tableLLM, entsql.EQ("session_id", sessionID)); err != nil {
		return 0, 0, 0, err
	}
	if mcp, err = r.count(ctx, tableMCP, entsql.EQ("session_id", sessionID)); err != nil {
		return 0, 0, 0, err
	}
	failedLLM, err := r.count(ctx, tableLLM, entsql.And(
		entsql.EQ("session_id", sessionID), entsql.EQ("success", false)))
	if err != nil {
		return 0, 0, 0, err
	}
	failedMCP, err := r.count(ctx, tableMCP, entsql.And(
		entsql.EQ("session_id", sessionID), entsql.EQ("success", false)))
	if err != nil {
		return 0, 0, 0, err
	}
	return llm, mcp, failedLLM + failedMCP, nil
}
