package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/auth"
	"schoolbus/internal/database"
	"schoolbus/internal/services"
	"schoolbus/pkg/logger"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("invalid request")

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(code, ErrorResponse{Error: err.Error()})
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, services.ErrRoomNotFound):
		return http.StatusNotFound

	case errors.Is(err, errBadRequest),
		errors.Is(err, services.ErrInvalidMessage):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrNoToken):
		return http.StatusUnauthorized

	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden

	default:
		return http.StatusInternalServerError
	}
}
