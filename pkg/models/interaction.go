package models

import "encoding/json"

// Interaction types recorded on LLM interactions.
const (
	LLMInteractionTypeInvestigation = "investigation"
	LLMInteractionTypeFinalAnalysis = "final_analysis"
	LLMInteractionTypeSummarization = "summarization"
	LLMInteractionTypeChat          = "chat"
)

// Communication types recorded on MCP interactions.
const (
	MCPCommunicationToolCall = "tool_call"
	MCPCommunicationToolList = "tool_list"
)

// LLMInteraction is a write-once audit row for one model call.
type LLMInteraction struct {
	InteractionID    string          `json:"interaction_id"`
	SessionID        string          `json:"session_id"`
	StageExecutionID string          `json:"stage_execution_id,omitempty"`
	TimestampUs      int64           `json:"timestamp_us"`
	DurationMs       int64           `json:"duration_ms"`
	Success          bool            `json:"success"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	ModelName        string          `json:"model_name"`
	Provider         string          `json:"provider,omitempty"`
	InteractionType  string          `json:"interaction_type"`
	Conversation     json.RawMessage `json:"conversation"`
	InputTokens      *int64          `json:"input_tokens,omitempty"`
	OutputTokens     *int64          `json:"output_tokens,omitempty"`
	TotalTokens      *int64          `json:"total_tokens,omitempty"`
}

// MCPInteraction is a write-once audit row for one MCP tool call or listing
// (table mcp_communications).
type MCPInteraction struct {
	CommunicationID   string          `json:"communication_id"`
	SessionID         string          `json:"session_id"`
	StageExecutionID  string          `json:"stage_execution_id,omitempty"`
	TimestampUs       int64           `json:"timestamp_us"`
	DurationMs        int64           `json:"duration_ms"`
	Success           bool            `json:"success"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ServerName        string          `json:"server_name"`
	CommunicationType string          `json:"communication_type"`
	ToolName          string          `json:"tool_name,omitempty"`
	ToolArguments     json.RawMessage `json:"tool_arguments,omitempty"`
	ToolResult        json.RawMessage `json:"tool_result,omitempty"`
	AvailableTools    json.RawMessage `json:"available_tools,omitempty"`
}
