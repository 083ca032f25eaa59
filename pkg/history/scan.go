package history

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// Table names.
const (
	tableSessions     = "alert_sessions"
	tableStages       = "stage_executions"
	tableLLM          = "llm_interactions"
	tableMCP          = "mcp_communications"
	tableChats        = "chats"
	tableChatMessages = "chat_user_messages"
)

var sessionColumns = []string{
	"session_id", "alert_type", "agent_type", "chain_id", "chain_definition",
	"status", "started_at_us", "completed_at_us", "alert_data", "runbook_url",
	"author", "mcp_selection", "session_metadata", "pod_id", "last_interaction_at",
	"final_analysis", "final_analysis_summary", "error_message", "pause_metadata",
	"current_stage_index", "current_stage_id",
	"session_input_tokens", "session_output_tokens", "session_total_tokens",
}

var stageColumns = []string{
	"execution_id", "session_id", "parent_stage_execution_id", "parallel_index",
	"parallel_type", "expected_parallel_count", "stage_index", "stage_id",
	"stage_name", "agent", "status", "started_at_us", "completed_at_us",
	"duration_ms", "stage_output", "error_message", "current_iteration",
	"paused_at_us", "paused_conversation_state", "chat_id", "chat_user_message_id",
	"stage_input_tokens", "stage_output_tokens", "stage_total_tokens",
}

var llmColumns = []string{
	"interaction_id", "session_id", "stage_execution_id", "timestamp_us",
	"duration_ms", "success", "error_message", "model_name", "provider",
	"interaction_type", "conversation", "input_tokens", "output_tokens", "total_tokens",
}

var mcpColumns = []string{
	"communication_id", "session_id", "stage_execution_id", "timestamp_us",
	"duration_ms", "success", "error_message", "server_name", "communication_type",
	"tool_name", "tool_arguments", "tool_result", "available_tools",
}

var chatColumns = []string{
	"chat_id", "session_id", "created_at_us", "created_by",
	"conversation_history", "chain_id", "pod_id", "last_interaction_at",
}

var chatMessageColumns = []string{"message_id", "chat_id", "content", "author", "created_at_us"}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (stdsql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*stdsql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *stdsql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var alertType, runbookURL, author, podID, finalAnalysis, finalSummary stdsql.NullString
	var errorMessage, currentStageID stdsql.NullString
	var completedAt, lastInteraction, stageIndex, inTok, outTok, totalTok stdsql.NullInt64
	var chainDef, alertData, mcpSelection, metadata, pauseMeta []byte
	var status string
	err := row.Scan(
		&s.ID, &alertType, &s.AgentType, &s.ChainID, &chainDef,
		&status, &s.StartedAtUs, &completedAt, &alertData, &runbookURL,
		&author, &mcpSelection, &metadata, &podID, &lastInteraction,
		&finalAnalysis, &finalSummary, &errorMessage, &pauseMeta,
		&stageIndex, &currentStageID,
		&inTok, &outTok, &totalTok,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.AlertType = alertType.String
	s.RunbookURL = runbookURL.String
	s.Author = author.String
	s.PodID = podID.String
	s.FinalAnalysis = finalAnalysis.String
	s.FinalAnalysisSummary = finalSummary.String
	s.ErrorMessage = errorMessage.String
	s.CurrentStageID = currentStageID.String
	s.CompletedAtUs = int64Ptr(completedAt)
	s.LastInteractionAt = int64Ptr(lastInteraction)
	s.SessionInputTokens = int64Ptr(inTok)
	s.SessionOutputTokens = int64Ptr(outTok)
	s.SessionTotalTokens = int64Ptr(totalTok)
	if stageIndex.Valid {
		i := int(stageIndex.Int64)
		s.CurrentStageIndex = &i
	}
	s.ChainDefinition = rawJSON(chainDef)
	s.AlertData = rawJSON(alertData)

	if s.MCPSelection, err = models.ParseMCPSelectionConfig(mcpSelection); err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	if len(metadata) > 0 && string(metadata) != "null" {
		if err := json.Unmarshal(metadata, &s.SessionMetadata); err != nil {
			return nil, fmt.Errorf("session %s: invalid session_metadata: %w", s.ID, err)
		}
	}
	if len(pauseMeta) > 0 && string(pauseMeta) != "null" {
		s.PauseMetadata = &models.PauseMetadata{}
		if err := json.Unmarshal(pauseMeta, s.PauseMetadata); err != nil {
			return nil, fmt.Errorf("session %s: invalid pause_metadata: %w", s.ID, err)
		}
	}
	return &s, nil
}

func scanStage(row rowScanner) (*models.StageExecution, error) {
	var st models.StageExecution
	var parentID, errorMessage, chatID, chatMessageID stdsql.NullString
	var expected, started, completed, duration, iteration stdsql.NullInt64
	var pausedAt, inTok, outTok, totalTok stdsql.NullInt64
	var output, conversation []byte
	var parallelType, status string
	err := row.Scan(
		&st.ExecutionID, &st.SessionID, &parentID, &st.ParallelIndex,
		&parallelType, &expected, &st.StageIndex, &st.StageID,
		&st.StageName, &st.Agent, &status, &started, &completed,
		&duration, &output, &errorMessage, &iteration,
		&pausedAt, &conversation, &chatID, &chatMessageID,
		&inTok, &outTok, &totalTok,
	)
	if err != nil {
		return nil, err
	}
	st.ParentStageExecutionID = parentID.String
	st.ParallelType = models.ParallelType(parallelType)
	st.Status = models.StageStatus(status)
	st.ErrorMessage = errorMessage.String
	st.ChatID = chatID.String
	st.ChatUserMessageID = chatMessageID.String
	st.ExpectedParallelCount = intPtr(expected)
	st.CurrentIteration = intPtr(iteration)
	st.StartedAtUs = int64Ptr(started)
	st.CompletedAtUs = int64Ptr(completed)
	st.DurationMs = int64Ptr(duration)
	st.PausedAtUs = int64Ptr(pausedAt)
	st.StageInputTokens = int64Ptr(inTok)
	st.StageOutputTokens = int64Ptr(outTok)
	st.StageTotalTokens = int64Ptr(totalTok)
	st.StageOutput = rawJSON(output)
	st.PausedConversationState = rawJSON(conversation)
	return &st, nil
}

func scanLLMInteraction(row rowScanner) (*models.LLMInteraction, error) {
	var in models.LLMInteraction
	var stageID, errorMessage, provider stdsql.NullString
	var inTok, outTok, totalTok stdsql.NullInt64
	var conversation []byte
	err := row.Scan(
		&in.InteractionID, &in.SessionID, &stageID, &in.TimestampUs,
		&in.DurationMs, &in.Success, &errorMessage, &in.ModelName, &provider,
		&in.InteractionType, &conversation, &inTok, &outTok, &totalTok,
	)
	if err != nil {
		return nil, err
	}
	in.StageExecutionID = stageID.String
	in.ErrorMessage = errorMessage.String
	in.Provider = provider.String
	in.Conversation = rawJSON(conversation)
	in.InputTokens = int64Ptr(inTok)
	in.OutputTokens = int64Ptr(outTok)
	in.TotalTokens = int64Ptr(totalTok)
	return &in, nil
}

func scanMCPInteraction(row rowScanner) (*models.MCPInteraction, error) {
	var in models.MCPInteraction
	var stageID, errorMessage, toolName stdsql.NullString
	var args, result, tools []byte
	err := row.Scan(
		&in.CommunicationID, &in.SessionID, &stageID, &in.TimestampUs,
		&in.DurationMs, &in.Success, &errorMessage, &in.ServerName, &in.CommunicationType,
		&toolName, &args, &result, &tools,
	)
	if err != nil {
		return nil, err
	}
	in.StageExecutionID = stageID.String
	in.ErrorMessage = errorMessage.String
	in.ToolName = toolName.String
	in.ToolArguments = rawJSON(args)
	in.ToolResult = rawJSON(result)
	in.AvailableTools = rawJSON(tools)
	return &in, nil
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var c models.Chat
	var createdBy, history, chainID, podID stdsql.NullString
	var lastInteraction stdsql.NullInt64
	if err := row.Scan(&c.ChatID, &c.SessionID, &c.CreatedAtUs, &createdBy,
		&history, &chainID, &podID, &lastInteraction); err != nil {
		return nil, err
	}
	c.CreatedBy = createdBy.String
	c.ConversationHistory = history.String
	c.ChainID = chainID.String
	c.PodID = podID.String
	c.LastInteractionAt = int64Ptr(lastInteraction)
	return &c, nil
}

func scanChatMessage(row rowScanner) (*models.ChatUserMessage, error) {
	var m models.ChatUserMessage
	if err := row.Scan(&m.MessageID, &m.ChatID, &m.Content, &m.Author, &m.CreatedAtUs); err != nil {
		return nil, err
	}
	return &m, nil
}

// scanAll drains rows with scan. The result is never nil.
func scanAll[T any](rows *stdsql.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	defer func() { _ = rows.Close() }()
	out := make([]*T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Parameter helpers: empty values are stored as NULL.

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func marshalNullable(v any) (any, error) {
	if isNone(v) {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func int64Ptr(n stdsql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func intPtr(n stdsql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
