package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ChainContext is what the agent runtime needs to process a session. It is
// rebuilt from the stored session row after a claim, so any pod can pick up
// any session.
type ChainContext struct {
	SessionID             string              `json:"session_id"`
	AlertType             string              `json:"alert_type"`
	AlertData             json.RawMessage     `json:"alert_data"`
	Author                string              `json:"author,omitempty"`
	RunbookURL            string              `json:"runbook_url,omitempty"`
	MCPSelection          *MCPSelectionConfig `json:"mcp_selection,omitempty"`
	SessionMetadata       map[string]any      `json:"session_metadata,omitempty"`
	ProcessingStartedAtUs int64               `json:"processing_started_at_us"`
	ChainID               string              `json:"chain_id"`
}

// ErrMissingAlertData is returned when a session row has no usable alert payload.
var ErrMissingAlertData = errors.New("session has no alert data")

// ChainContextFromSession reconstructs the processing context from stored
// session fields. AlertData is passed through untouched.
func ChainContextFromSession(s *Session) (*ChainContext, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if len(s.AlertData) == 0 {
		return nil, fmt.Errorf("session %s: %w", s.ID, ErrMissingAlertData)
	}
	if !json.Valid(s.AlertData) {
		return nil, fmt.Errorf("session %s: alert_data is not valid JSON", s.ID)
	}
	return &ChainContext{
		SessionID:             s.ID,
		AlertType:             s.AlertType,
		AlertData:             s.AlertData,
		Author:                s.Author,
		RunbookURL:            s.RunbookURL,
		MCPSelection:          s.MCPSelection,
		SessionMetadata:       s.SessionMetadata,
		ProcessingStartedAtUs: s.StartedAtUs,
		ChainID:               s.ChainID,
	}, nil
}

// NewSession builds a pending session row from a submission context and
// the chain it will run.
func NewSession(cc *ChainContext, chain *ChainDefinition) (*Session, error) {
	if cc == nil || chain == nil {
		return nil, errors.New("context and chain definition are required")
	}
	def, err := json.Marshal(chain)
	if err != nil {
		return nil, fmt.Errorf("encode chain definition: %w", err)
	}
	startedAt := cc.ProcessingStartedAtUs
	if startedAt == 0 {
		startedAt = NowUs()
	}
	return &Session{
		ID:              cc.SessionID,
		AlertType:       cc.AlertType,
		AgentType:       chain.AgentType(),
		ChainID:         chain.ChainID,
		ChainDefinition: def,
		Status:          SessionStatusPending,
		StartedAtUs:     startedAt,
		AlertData:       cc.AlertData,
		RunbookURL:      cc.RunbookURL,
		Author:          cc.Author,
		MCPSelection:    cc.MCPSelection,
		SessionMetadata: cc.SessionMetadata,
	}, nil
}
