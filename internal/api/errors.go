package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/googleapi"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
	"go-autoagent/internal/scheduler"
)

// statusFor maps error kinds to HTTP statuses. Transient is checked before
// the provider kinds because timeouts carry both.
func statusFor(err error) int {
	var gerr *googleapi.Error
	switch {
	case errors.Is(err, memory.ErrValidation), errors.Is(err, scheduler.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound), errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrTransient):
		return http.StatusGatewayTimeout
	case errors.Is(err, memory.ErrEmbeddingProvider), errors.Is(err, agent.ErrCompletionProvider):
		return http.StatusBadGateway
	case errors.Is(err, memory.ErrBackendUnavailable), errors.Is(err, gmail.ErrNotAuthenticated):
		return http.StatusServiceUnavailable
	case errors.As(err, &gerr):
		if gerr.Code == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) gin.H {
	return gin.H{"error": gin.H{"message": msg}}
}

// respondError logs err with the request logger and writes the mapped
// status. Server-side failures are logged at error level.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	log := logging.From(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	c.JSON(status, errorBody(err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody(msg))
}
