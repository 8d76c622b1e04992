package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"schoolbus/internal/auth"
	ws "schoolbus/internal/websocket"
	"schoolbus/pkg/logger"
)

type WebSocketHandlers struct {
	authService *auth.Service
	hubManager  *ws.Manager
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, hubManager *ws.Manager) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		hubManager:  hubManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades GET /ws?token=... for an authenticated user.
// Rooms are joined afterwards with join-chat.
func (h *WebSocketHandlers) HandleWebSocket(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		respondError(c, auth.ErrNoToken)
		return
	}

	user, err := h.authService.GetUserFromToken(c.Request.Context(), tokenStr)
	if err != nil {
		respondError(c, auth.ErrInvalidToken)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	ws.NewClient(h.hubManager, conn, *user).Start()
}
