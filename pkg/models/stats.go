package models

// SessionStats aggregates interaction counts, duration and token usage for
// one session.
type SessionStats struct {
	TotalInteractions   int              `json:"total_interactions"`
	LLMInteractions     int              `json:"llm_interactions"`
	MCPCommunications   int              `json:"mcp_communications"`
	ErrorsCount         int              `json:"errors_count"`
	TotalDurationMs     *int64           `json:"total_duration_ms,omitempty"`
	SessionInputTokens  int64            `json:"session_input_tokens"`
	SessionOutputTokens int64            `json:"session_output_tokens"`
	SessionTotalTokens  int64            `json:"session_total_tokens"`
	ChainStatistics     *ChainStatistics `json:"chain_statistics,omitempty"`
}

// ChainStatistics summarizes the top-level stages of a session.
type ChainStatistics struct {
	TotalStages     int            `json:"total_stages"`
	CompletedStages int            `json:"completed_stages"`
	FailedStages    int            `json:"failed_stages"`
	ParallelStages  int            `json:"parallel_stages"`
	StagesByAgent   map[string]int `json:"stages_by_agent"`
}
