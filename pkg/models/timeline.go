package models

// Timeline entry kinds.
const (
	TimelineEntryLLM = "llm"
	TimelineEntryMCP = "mcp"
)

// TimelineEntry is one interaction in a session timeline. Exactly one of
// LLM and MCP is set, matching Kind.
type TimelineEntry struct {
	Kind             string          `json:"kind"`
	TimestampUs      int64           `json:"timestamp_us"`
	StageExecutionID string          `json:"stage_execution_id,omitempty"`
	LLM              *LLMInteraction `json:"llm,omitempty"`
	MCP              *MCPInteraction `json:"mcp,omitempty"`
}

// SessionTimeline is the full audit view of a session.
type SessionTimeline struct {
	Session *Session          `json:"session"`
	Stages  []*StageExecution `json:"stages"`
	Entries []TimelineEntry   `json:"entries"`
}
