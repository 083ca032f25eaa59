package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// SubmitAlertInput contains the domain-level data needed to create a session.
// Transformed from the HTTP request + headers by the handler.
type SubmitAlertInput struct {
	AlertType string
	Runbook   string
	Data      json.RawMessage            // Alert payload, stored as-is
	MCP       *models.MCPSelectionConfig // MCP selection config (optional)
	Author    string                     // From oauth2-proxy headers
	Metadata  map[string]any
}

// AlertStore creates sessions. history.Service satisfies it.
type AlertStore interface {
	CreateSession(ctx context.Context, cc *models.ChainContext, chain *models.ChainDefinition) bool
}

// AlertService handles alert submission and session creation.
type AlertService struct {
	store AlertStore
	cfg   *config.Config
}

// NewAlertService creates a new AlertService.
func NewAlertService(store AlertStore, cfg *config.Config) *AlertService {
	if store == nil {
		panic("NewAlertService: store must not be nil")
	}
	if cfg == nil {
		panic("NewAlertService: cfg must not be nil")
	}
	return &AlertService{store: store, cfg: cfg}
}

// SubmitAlert creates a pending session for an alert. The chain is
// snapshotted onto the session so later configuration changes do not
// affect it. Returns the session context as submitted.
func (s *AlertService) SubmitAlert(ctx context.Context, input SubmitAlertInput) (*models.ChainContext, error) {
	if len(input.Data) == 0 {
		return nil, NewValidationError("data", "alert data is required")
	}
	if !json.Valid(input.Data) {
		return nil, NewValidationError("data", "alert data must be valid JSON")
	}

	chain, err := s.cfg.ResolveChain(input.AlertType)
	if err != nil {
		return nil, NewValidationError("alert_type", err.Error())
	}
	defaults := s.cfg.Defaults
	if defaults == nil {
		defaults = &config.Defaults{}
	}
	alertType := input.AlertType
	if alertType == "" {
		alertType = defaults.AlertType
	}
	runbook := input.Runbook
	if runbook == "" {
		runbook = defaults.RunbookURL
	}

	cc := &models.ChainContext{
		SessionID:             uuid.New().String(),
		AlertType:             alertType,
		AlertData:             input.Data,
		Author:                input.Author,
		RunbookURL:            runbook,
		MCPSelection:          input.MCP,
		SessionMetadata:       input.Metadata,
		ProcessingStartedAtUs: models.NowUs(),
		ChainID:               chain.ChainID,
	}
	if !s.store.CreateSession(ctx, cc, chain) {
		return nil, fmt.Errorf("failed to create session: %w", ErrUnavailable)
	}

	slog.Info("Alert submitted",
		"session_id", cc.SessionID,
		"alert_type", alertType,
		"chain_id", chain.ChainID)
	return cc, nil
}
