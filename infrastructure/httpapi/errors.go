package httpapi

import (
	"context"
	"krysselista/errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusFor maps the error kinds of the core onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrAccess):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrPersistence):
		return http.StatusBadGateway
	case errors.Is(err, errors.ErrManagerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abort(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var sendErr *errors.SendError
	if errors.As(err, &sendErr) {
		body["draft"] = sendErr.Draft
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}
