package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	session, err := s.sessionService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// sessionSummaryHandler handles GET /api/v1/sessions/:id/summary.
func (s *Server) sessionSummaryHandler(c *gin.Context) {
	stats, err := s.sessionService.GetSessionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// cancelSessionHandler handles POST /api/v1/sessions/:id/cancel.
func (s *Server) cancelSessionHandler(c *gin.Context) {
	res, err := s.sessionService.CancelSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	msg := "Cancellation requested"
	if res.Status == models.SessionStatusCancelled {
		msg = "Session cancelled"
	}
	c.JSON(http.StatusOK, &CancelResponse{
		SessionID:       res.SessionID,
		Status:          res.Status,
		CancelledStages: res.CancelledStages,
		Message:         msg,
	})
}
