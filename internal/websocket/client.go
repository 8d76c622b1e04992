package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"schoolbus/internal/models"
	"schoolbus/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	accessTimeout  = 5 * time.Second
)

// Client is one websocket connection of an authenticated user.
type Client struct {
	manager   *Manager
	conn      *websocket.Conn
	send      chan []byte
	user      models.User
	sessionID string

	mu     sync.Mutex
	hub    *Hub
	closed bool
}

func NewClient(manager *Manager, conn *websocket.Conn, user models.User) *Client {
	return &Client{
		manager:   manager,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		user:      user,
		sessionID: uuid.NewString(),
	}
}

// Start registers the client and runs its pumps until the connection drops.
func (c *Client) Start() {
	c.manager.attach(c)
	logger.Debug("Session %s opened for user %s", c.sessionID, c.user.ID)
	go c.WritePump()
	go c.ReadPump()
}

// enqueue hands a frame to the write pump. A client whose buffer is full is
// closed and false is returned.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) currentHub() *Hub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub
}

func (c *Client) leftRoom(h *Hub) {
	c.mu.Lock()
	if c.hub == h {
		c.hub = nil
	}
	c.mu.Unlock()
}

func (c *Client) ReadPump() {
	defer func() {
		if hub := c.currentHub(); hub != nil {
			hub.leave(c)
		}
		c.manager.detach(c)
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.send)
		}
		c.mu.Unlock()
		c.conn.Close()
		logger.Debug("Session %s closed for user %s", c.sessionID, c.user.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logger.Warn("Dropping malformed frame from %s: %v", c.user.ID, err)
			continue
		}
		c.handle(env, message)
	}
}

func (c *Client) handle(env models.Envelope, raw []byte) {
	switch env.Event {
	case models.EventJoinChat:
		var req models.JoinChat
		if err := json.Unmarshal(env.Data, &req); err != nil {
			logger.Warn("Invalid join-chat from %s: %v", c.user.ID, err)
			return
		}
		c.join(req)

	case models.EventChatMessage:
		hub := c.currentHub()
		if hub == nil {
			return
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			logger.Warn("Invalid chat-message from %s: %v", c.user.ID, err)
			return
		}
		// the sender is always the authenticated connection user
		msg.SenderID = c.user.ID
		msg.SenderRole = c.user.Role
		if c.user.Name != "" {
			msg.SenderName = c.user.Name
		}
		data, err := encode(models.EventChatMessage, msg)
		if err != nil {
			logger.Error("Error encoding chat-message from %s: %v", c.user.ID, err)
			return
		}
		hub.Send(data, nil)

	case models.EventTypingStart, models.EventTypingStop:
		if hub := c.currentHub(); hub != nil {
			hub.Send(raw, c)
		}

	case models.EventBusLocationUpdate:
		if c.user.Role != models.RoleDriver && c.user.Role != models.RoleAdmin {
			return
		}
		var update models.LocationUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil || update.BusID == "" {
			return
		}
		c.manager.BroadcastAll(models.EventBusLocationUpdate, update)

	default:
		logger.Debug("Ignoring %q from %s", env.Event, c.user.ID)
	}
}

func (c *Client) join(req models.JoinChat) {
	ctx, cancel := context.WithTimeout(context.Background(), accessTimeout)
	defer cancel()

	ok, err := c.manager.access.CanUserAccessRoom(ctx, c.user, req.BusID, req.TripID)
	if err != nil {
		logger.Warn("Join %s:%s by %s failed: %v", req.BusID, req.TripID, c.user.ID, err)
		return
	}
	if !ok {
		logger.Warn("User %s may not join room %s:%s", c.user.ID, req.BusID, req.TripID)
		return
	}

	hub := c.manager.GetHubForRoom(models.RoomKey(req.BusID, req.TripID))
	if prev := c.currentHub(); prev != nil {
		if prev == hub {
			return
		}
		prev.leave(c)
	}
	if hub.join(c) {
		c.mu.Lock()
		c.hub = hub
		c.mu.Unlock()
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
