package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy-core/pkg/agent"
	"github.com/codeready-toolchain/tarsy-core/pkg/services"
)

// maxRequestBodySize leaves room for the envelope around the alert payload.
const maxRequestBodySize = 2 * agent.MaxAlertDataSize

// submitAlertHandler handles POST /api/v1/alerts.
// Creates a session in "pending" status and returns immediately with session_id.
func (s *Server) submitAlertHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)

	var req SubmitAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", maxRequestBodySize))
			return
		}
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	if len(req.Data) == 0 {
		abortWithError(c, http.StatusBadRequest, "data field is required")
		return
	}
	if len(req.Data) > agent.MaxAlertDataSize {
		abortWithError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("alert data exceeds maximum size of %d bytes", agent.MaxAlertDataSize))
		return
	}

	cc, err := s.alertService.SubmitAlert(c.Request.Context(), services.SubmitAlertInput{
		AlertType: req.AlertType,
		Runbook:   req.Runbook,
		Data:      req.Data,
		MCP:       req.MCP,
		Author:    extractAuthor(c),
		Metadata:  req.Metadata,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, &AlertResponse{
		SessionID: cc.SessionID,
		Status:    "queued",
		Message:   "Alert submitted for processing",
	})
}
