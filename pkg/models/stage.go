package models

import "encoding/json"

// StageStatus is the lifecycle state of a stage execution.
type StageStatus string

// Stage statuses.
const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusPaused    StageStatus = "paused"
	StageStatusCancelled StageStatus = "cancelled"
	StageStatusTimedOut  StageStatus = "timed_out"
)

// IsTerminal reports whether the stage has had its single terminal write.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusCompleted, StageStatusFailed, StageStatusCancelled, StageStatusTimedOut:
		return true
	}
	return false
}

// ParallelType describes how a stage fans out.
type ParallelType string

// Parallel types.
const (
	ParallelTypeSingle     ParallelType = "single"
	ParallelTypeMultiAgent ParallelType = "multi_agent"
	ParallelTypeReplica    ParallelType = "replica"
)

// StageExecution is one stage of a session's chain, or one parallel child
// of such a stage (table stage_executions).
type StageExecution struct {
	ExecutionID            string       `json:"execution_id"`
	SessionID              string       `json:"session_id"`
	ParentStageExecutionID string       `json:"parent_stage_execution_id,omitempty"`
	ParallelIndex          int          `json:"parallel_index"`
	ParallelType           ParallelType `json:"parallel_type"`
	ExpectedParallelCount  *int         `json:"expected_parallel_count,omitempty"`

	StageIndex int    `json:"stage_index"`
	StageID    string `json:"stage_id"`
	StageName  string `json:"stage_name"`
	Agent      string `json:"agent"`

	Status        StageStatus     `json:"status"`
	StartedAtUs   *int64          `json:"started_at_us,omitempty"`
	CompletedAtUs *int64          `json:"completed_at_us,omitempty"`
	DurationMs    *int64          `json:"duration_ms,omitempty"`
	StageOutput   json.RawMessage `json:"stage_output,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`

	// Pause state, preserved for resumption.
	CurrentIteration        *int            `json:"current_iteration,omitempty"`
	PausedAtUs              *int64          `json:"paused_at_us,omitempty"`
	PausedConversationState json.RawMessage `json:"paused_conversation_state,omitempty"`

	// Set when the stage was triggered by a chat message.
	ChatID            string `json:"chat_id,omitempty"`
	ChatUserMessageID string `json:"chat_user_message_id,omitempty"`

	StageInputTokens  *int64 `json:"stage_input_tokens,omitempty"`
	StageOutputTokens *int64 `json:"stage_output_tokens,omitempty"`
	StageTotalTokens  *int64 `json:"stage_total_tokens,omitempty"`

	// Materialized from child rows, never stored.
	ParallelExecutions []*StageExecution `json:"parallel_executions,omitempty"`
}

// IsParallelChild reports whether the execution belongs to a parent stage.
func (s *StageExecution) IsParallelChild() bool {
	return s.ParentStageExecutionID != ""
}

// Finish stamps completion fields, computing the duration from the stage's
// own start time when it has one.
func (s *StageExecution) Finish(status StageStatus, completedAtUs int64) {
	s.Status = status
	s.CompletedAtUs = &completedAtUs
	if s.StartedAtUs != nil {
		d := (completedAtUs - *s.StartedAtUs) / 1000
		s.DurationMs = &d
	}
}

// ChainDefinition is the snapshot of the chain a session runs, stored with
// the session so resumption uses the same stages even if configuration
// changes in between.
type ChainDefinition struct {
	ChainID     string                 `json:"chain_id"`
	AlertTypes  []string               `json:"alert_types,omitempty"`
	Description string                 `json:"description,omitempty"`
	Stages      []ChainStageDefinition `json:"stages"`
}

// ChainStageDefinition describes one stage of a chain.
type ChainStageDefinition struct {
	Name     string   `json:"name"`
	Agent    string   `json:"agent,omitempty"`
	Agents   []string `json:"agents,omitempty"`
	Replicas int      `json:"replicas,omitempty"`
}

// AgentType returns the agent label recorded on sessions running this chain.
func (c *ChainDefinition) AgentType() string {
	return "chain:" + c.ChainID
}
