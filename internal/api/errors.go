package api

import (
	"errors"
	"log/slog"
	"net/http"

	"devserver/internal/eventbus"
	"devserver/internal/eventlog"
	"devserver/internal/service"
	"devserver/internal/session"

	"github.com/gin-gonic/gin"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")

	errRouteNotFound = errors.New("route not found")
)

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func respondErrorWithDetails(c *gin.Context, code int, err error, details string) {
	c.JSON(code, ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		Details: details,
	})
}

// respondServiceError translates a domain error into its HTTP response.
// Unexpected errors are logged and answered with a generic 500.
func respondServiceError(c *gin.Context, err error) {
	status := mapServiceError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		slog.Error("Unhandled service error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		respondError(c, status, ErrInternal)
		return
	}
	respondError(c, status, err)
}

func mapServiceError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, eventlog.ErrInvalidPayload),
		errors.Is(err, service.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, eventlog.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, eventbus.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
