// Package models holds the persisted entities of the session lifecycle core
// and the request/response shapes built from them.
package models

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of an alert session.
type SessionStatus string

// Session statuses.
const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusCanceling  SessionStatus = "canceling"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusTimedOut   SessionStatus = "timed_out"
)

// TerminalSessionStatuses never transition further.
var TerminalSessionStatuses = []SessionStatus{
	SessionStatusCompleted,
	SessionStatusFailed,
	SessionStatusTimedOut,
	SessionStatusCancelled,
}

// sessionTransitions is the status DAG. Maintenance sweeps bypass it when
// failing rows whose owner died.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPending: {SessionStatusInProgress, SessionStatusCanceling},
	SessionStatusInProgress: {
		SessionStatusCompleted,
		SessionStatusFailed,
		SessionStatusTimedOut,
		SessionStatusPaused,
		SessionStatusCanceling,
	},
	SessionStatusPaused: {SessionStatusInProgress, SessionStatusCanceling},
	SessionStatusCanceling: {
		SessionStatusCancelled,
		SessionStatusFailed,
		SessionStatusTimedOut,
	},
}

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusTimedOut, SessionStatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPending, SessionStatusInProgress, SessionStatusPaused, SessionStatusCanceling:
		return true
	}
	return s.IsTerminal()
}

// CanTransition reports whether from → to is an edge of the status DAG.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// allSessionStatuses fixes the order PredecessorsOf reports in.
var allSessionStatuses = []SessionStatus{
	SessionStatusPending,
	SessionStatusInProgress,
	SessionStatusPaused,
	SessionStatusCanceling,
	SessionStatusCancelled,
	SessionStatusCompleted,
	SessionStatusFailed,
	SessionStatusTimedOut,
}

// PredecessorsOf returns the statuses a session may move to `to` from.
// It is empty for pending and never contains a terminal status.
func PredecessorsOf(to SessionStatus) []SessionStatus {
	var from []SessionStatus
	for _, s := range allSessionStatuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// PauseReasonMaxIterations is recorded when a reasoning loop ran out of
// iterations after a successful model call.
const PauseReasonMaxIterations = "max_iterations_reached"

// PauseMetadata describes why a session is paused. Only set while the
// session status is paused.
type PauseMetadata struct {
	Reason           string `json:"reason"`
	CurrentIteration int    `json:"current_iteration"`
	Message          string `json:"message"`
	PausedAtUs       int64  `json:"paused_at_us"`
}

// Session is one alert-processing run (table alert_sessions).
// Empty strings are stored as NULL.
type Session struct {
	ID              string              `json:"session_id"`
	AlertType       string              `json:"alert_type,omitempty"`
	AgentType       string              `json:"agent_type"`
	ChainID         string              `json:"chain_id"`
	ChainDefinition json.RawMessage     `json:"chain_definition,omitempty"`
	Status          SessionStatus       `json:"status"`
	StartedAtUs     int64               `json:"started_at_us"`
	CompletedAtUs   *int64              `json:"completed_at_us,omitempty"`
	AlertData       json.RawMessage     `json:"alert_data"`
	RunbookURL      string              `json:"runbook_url,omitempty"`
	Author          string              `json:"author,omitempty"`
	MCPSelection    *MCPSelectionConfig `json:"mcp_selection,omitempty"`
	SessionMetadata map[string]any      `json:"session_metadata,omitempty"`

	// Multi-pod ownership.
	PodID             string `json:"pod_id,omitempty"`
	LastInteractionAt *int64 `json:"last_interaction_at,omitempty"`

	FinalAnalysis        string         `json:"final_analysis,omitempty"`
	FinalAnalysisSummary string         `json:"final_analysis_summary,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	PauseMetadata        *PauseMetadata `json:"pause_metadata,omitempty"`

	// Denormalized for listing.
	CurrentStageIndex   *int   `json:"current_stage_index,omitempty"`
	CurrentStageID      string `json:"current_stage_id,omitempty"`
	SessionInputTokens  *int64 `json:"session_input_tokens,omitempty"`
	SessionOutputTokens *int64 `json:"session_output_tokens,omitempty"`
	SessionTotalTokens  *int64 `json:"session_total_tokens,omitempty"`
}

// DurationMs returns the wall time between start and completion, or nil
// while the session is still open.
func (s *Session) DurationMs() *int64 {
	if s.CompletedAtUs == nil {
		return nil
	}
	d := (*s.CompletedAtUs - s.StartedAtUs) / 1000
	return &d
}

// SessionStatusUpdate carries the optional fields of a status update.
// Nil fields are left unchanged.
type SessionStatusUpdate struct {
	ErrorMessage         *string
	FinalAnalysis        *string
	FinalAnalysisSummary *string
	PauseMetadata        *PauseMetadata
}

// SessionFilters contains filtering options for listing sessions
type SessionFilters struct {
	Statuses        []SessionStatus `json:"statuses,omitempty"`
	AgentType       string          `json:"agent_type,omitempty"`
	AlertType       string          `json:"alert_type,omitempty"`
	Author          string          `json:"author,omitempty"`
	StartedAfterUs  *int64          `json:"started_after_us,omitempty"`
	StartedBeforeUs *int64          `json:"started_before_us,omitempty"`
	Limit           int             `json:"limit,omitempty"`
	Offset          int             `json:"offset,omitempty"`
}

// SessionListResponse contains paginated session list
type SessionListResponse struct {
	Sessions   []*Session `json:"sessions"`
	TotalCount int        `json:"total_count"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// NowUs returns the current time as Unix microseconds (UTC).
func NowUs() int64 {
	return time.Now().UnixMicro()
}

// UsToTime converts Unix microseconds to a UTC time.
func UsToTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
