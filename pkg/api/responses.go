package api

import (
	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/queue"
)

// AlertResponse is returned by POST /api/v1/alerts.
type AlertResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// CancelResponse is returned by POST /api/v1/sessions/:id/cancel.
type CancelResponse struct {
	SessionID       string               `json:"session_id"`
	Status          models.SessionStatus `json:"status"`
	CancelledStages int                  `json:"cancelled_stages,omitempty"`
	Message         string               `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	Database      *database.HealthStatus `json:"database,omitempty"`
	Checks        map[string]HealthCheck `json:"checks"`
	Configuration *config.Stats          `json:"configuration,omitempty"`
	Worker        *queue.WorkerHealth    `json:"worker,omitempty"`
}

// HealthCheck is the result of one component check.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
