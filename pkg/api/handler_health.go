package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/queue"
	"github.com/codeready-toolchain/tarsy-core/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Only the database and the claim worker are checked. A stopped worker
// degrades the pod; an unreachable database makes it unhealthy.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.GitCommit,
		Checks:  make(map[string]HealthCheck),
	}

	if client := s.db.Client(); client == nil {
		resp.Status = healthStatusUnhealthy
		resp.Checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: "database not initialized"}
	} else {
		dbHealth, err := database.Health(reqCtx, client)
		resp.Database = dbHealth
		if err != nil {
			resp.Status = healthStatusUnhealthy
			resp.Checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			resp.Checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.worker != nil {
		h := s.worker.Health()
		resp.Worker = &h
		if h.State != queue.WorkerStateRunning {
			if resp.Status == healthStatusHealthy {
				resp.Status = healthStatusDegraded
			}
			resp.Checks["worker"] = HealthCheck{Status: healthStatusDegraded, Message: "claim worker is " + string(h.State)}
		} else {
			resp.Checks["worker"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.cfg != nil {
		stats := s.cfg.Stats()
		resp.Configuration = &stats
	}

	httpStatus := http.StatusOK
	if resp.Status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, resp)
}
