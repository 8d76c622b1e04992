package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolbus/internal/attachment"
	"schoolbus/internal/config"
	"schoolbus/internal/models"
	"schoolbus/internal/services"
	"schoolbus/pkg/logger"
)

const maxUploadSize = 10 << 20

// RoomBroadcaster pushes an event to the live members of a chat room.
type RoomBroadcaster interface {
	BroadcastToRoom(busID, tripID string, event models.EventName, payload interface{})
}

type ChatHandlers struct {
	chatService *services.ChatService
	hub         RoomBroadcaster
	uploads     config.UploadConfig
}

func NewChatHandlers(chatService *services.ChatService, hub RoomBroadcaster, uploads config.UploadConfig) *ChatHandlers {
	return &ChatHandlers{
		chatService: chatService,
		hub:         hub,
		uploads:     uploads,
	}
}

// History handles GET /api/chats/:busId/:tripId
func (h *ChatHandlers) History(c *gin.Context) {
	messages, err := h.chatService.History(c.Request.Context(), currentUser(c), c.Param("busId"), c.Param("tripId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage handles POST /api/chats/:busId/:tripId and relays the stored
// message to the room.
func (h *ChatHandlers) PostMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	busID, tripID := c.Param("busId"), c.Param("tripId")
	msg, err := h.chatService.PostMessage(c.Request.Context(), currentUser(c), busID, tripID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.BroadcastToRoom(busID, tripID, models.EventChatMessage, msg)
	c.JSON(http.StatusCreated, gin.H{"chat": msg})
}

// Upload handles POST /api/uploads with a multipart "file" part.
func (h *ChatHandlers) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := attachment.Validate(attachment.ImageRef{Path: file.Filename}); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if file.Size > maxUploadSize {
		respondError(c, fmt.Errorf("%w: file exceeds %d bytes", errBadRequest, maxUploadSize))
		return
	}

	if err := os.MkdirAll(h.uploads.Dir, 0o755); err != nil {
		respondError(c, fmt.Errorf("failed to prepare upload dir: %w", err))
		return
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploads.Dir, name)); err != nil {
		respondError(c, fmt.Errorf("failed to store upload: %w", err))
		return
	}
	logger.Info("Stored upload %s (%d bytes) from %s", name, file.Size, currentUser(c).ID)

	c.JSON(http.StatusCreated, gin.H{"url": h.publicURL(c) + "/files/" + name})
}

func (h *ChatHandlers) publicURL(c *gin.Context) string {
	if h.uploads.PublicURL != "" {
		return h.uploads.PublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
