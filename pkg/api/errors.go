package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy-core/pkg/services"
)

// mapServiceError maps service-layer errors to an HTTP status and message.
func mapServiceError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "session not found"
	}
	if errors.Is(err, services.ErrAlreadyFinished) {
		return http.StatusConflict, err.Error()
	}
	if errors.Is(err, services.ErrUnavailable) {
		return http.StatusServiceUnavailable, "history store unavailable"
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}

func abortWithError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, &ErrorResponse{Error: msg})
}

func abortWithServiceError(c *gin.Context, err error) {
	code, msg := mapServiceError(err)
	abortWithError(c, code, msg)
}
