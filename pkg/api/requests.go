package api

import (
	"encoding/json"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// SubmitAlertRequest is the HTTP request body for POST /api/v1/alerts.
type SubmitAlertRequest struct {
	AlertType string                     `json:"alert_type"`
	Runbook   string                     `json:"runbook,omitempty"`
	Data      json.RawMessage            `json:"data"`
	MCP       *models.MCPSelectionConfig `json:"mcp,omitempty"`
	Metadata  map[string]any             `json:"metadata,omitempty"`
}
