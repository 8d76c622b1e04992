package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"schoolbus/internal/models"
	"schoolbus/pkg/logger"
)

const (
	hubIdleTimeout  = 30 * time.Minute
	cleanupInterval = 5 * time.Minute
)

type outbound struct {
	data   []byte
	except *Client
}

// Hub fans frames out to the clients of one chat room.
type Hub struct {
	clients      map[*Client]bool
	Broadcast    chan outbound
	Register     chan *Client
	Unregister   chan *Client
	roomKey      string
	shutdown     chan struct{}
	done         chan struct{}
	mu           sync.Mutex
	count        int
	lastActivity time.Time
}

func NewHub(roomKey string) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		Broadcast:    make(chan outbound, 64),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		roomKey:      roomKey,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.shutdown:
			for client := range h.clients {
				client.leftRoom(h)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true
			h.touch(len(h.clients))
			logger.Info("User %s joined room %s", client.user.ID, h.roomKey)

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.touch(len(h.clients))
				logger.Info("User %s left room %s", client.user.ID, h.roomKey)
			}

		case msg := <-h.Broadcast:
			h.touch(len(h.clients))
			h.broadcastToAll(msg)
		}
	}
}

func (h *Hub) touch(count int) {
	h.mu.Lock()
	h.count = count
	h.lastActivity = time.Now()
	h.mu.Unlock()
}

func (h *Hub) broadcastToAll(msg outbound) {
	for client := range h.clients {
		if client == msg.except {
			continue
		}
		if !client.enqueue(msg.data) {
			delete(h.clients, client)
		}
	}
}

// Send queues a frame for every member, skipping except when set. It does
// nothing once the hub has shut down.
func (h *Hub) Send(data []byte, except *Client) {
	select {
	case h.Broadcast <- outbound{data: data, except: except}:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) GetOnlineUserCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Hub) idleSince() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastActivity
}

func (h *Hub) ShutdownHub() {
	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
}

// RoomAccess decides whether a user may join a chat room.
type RoomAccess interface {
	CanUserAccessRoom(ctx context.Context, user models.User, busID, tripID string) (bool, error)
}

// Manager owns the room hubs and the set of connected clients.
type Manager struct {
	hubs    map[string]*Hub
	clients map[*Client]bool
	mutex   sync.Mutex
	access  RoomAccess
	stop    chan struct{}
	once    sync.Once
}

func NewManager(access RoomAccess) *Manager {
	manager := &Manager{
		hubs:    make(map[string]*Hub),
		clients: make(map[*Client]bool),
		access:  access,
		stop:    make(chan struct{}),
	}

	go manager.cleanupUnusedHubs()
	return manager
}

func (m *Manager) GetHubForRoom(roomKey string) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.hubs[roomKey]
	if !exists {
		hub = NewHub(roomKey)
		m.hubs[roomKey] = hub
		go hub.Run()
	}
	return hub
}

// BroadcastToRoom sends an event to every member of a room, if it has any.
func (m *Manager) BroadcastToRoom(busID, tripID string, event models.EventName, payload interface{}) {
	m.mutex.Lock()
	hub := m.hubs[models.RoomKey(busID, tripID)]
	m.mutex.Unlock()
	if hub == nil {
		return
	}
	data, err := encode(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s: %v", event, err)
		return
	}
	hub.Send(data, nil)
}

// BroadcastAll sends an event to every connected client.
func (m *Manager) BroadcastAll(event models.EventName, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s: %v", event, err)
		return
	}
	m.mutex.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mutex.Unlock()

	for _, c := range clients {
		c.enqueue(data)
	}
}

func (m *Manager) attach(c *Client) {
	m.mutex.Lock()
	m.clients[c] = true
	m.mutex.Unlock()
}

func (m *Manager) detach(c *Client) {
	m.mutex.Lock()
	delete(m.clients, c)
	m.mutex.Unlock()
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients)
}

// Shutdown stops the cleanup loop and every hub.
func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.stop) })
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for key, hub := range m.hubs {
		hub.ShutdownHub()
		delete(m.hubs, key)
	}
}

func (m *Manager) cleanupUnusedHubs() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup(time.Now())
		}
	}
}

func (m *Manager) cleanup(now time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for roomKey, hub := range m.hubs {
		if hub.GetOnlineUserCount() == 0 && now.Sub(hub.idleSince()) > hubIdleTimeout {
			hub.ShutdownHub()
			delete(m.hubs, roomKey)
			logger.Debug("Cleaned up unused hub for room %s", roomKey)
		}
	}
}

func encode(event models.EventName, payload interface{}) ([]byte, error) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
