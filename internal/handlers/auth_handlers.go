package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/auth"
	"schoolbus/internal/models"
	"schoolbus/pkg/logger"
)

const userKey = "user"

type AuthHandlers struct {
	authService *auth.Service
}

func NewAuthHandlers(authService *auth.Service) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	response, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		logger.Warn("Login error for %s: %v", req.Email, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// RequireAuth resolves the bearer token of the request into the caller.
func (h *AuthHandlers) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			respondError(c, auth.ErrNoToken)
			return
		}

		claims, err := h.authService.ValidateToken(token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(userKey, claims.User())
		c.Next()
	}
}

func currentUser(c *gin.Context) models.User {
	user, _ := c.MustGet(userKey).(models.User)
	return user
}
