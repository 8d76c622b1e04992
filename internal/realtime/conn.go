package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"schoolbus/internal/metrics"
	"schoolbus/internal/models"
	"schoolbus/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ErrClosed is returned by Emit after the channel is closed.
var ErrClosed = errors.New("realtime channel closed")

// Handler receives the raw data of one event.
type Handler func(data json.RawMessage)

// Socket is a bidirectional named-event channel.
//
// Handlers run sequentially on the read goroutine in arrival order. Register
// them with On before calling Listen. Close must not be called from a handler.
type Socket interface {
	On(event models.EventName, h Handler)
	Listen()
	Emit(event models.EventName, payload interface{}) error
	Close() error
	Done() <-chan struct{}
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context) (Socket, error)
}

// TokenSource supplies the token sent in the "token" query parameter.
type TokenSource interface {
	Token() (string, error)
}

// WSDialer dials a websocket endpoint.
type WSDialer struct {
	URL     string
	Tokens  TokenSource
	Metrics *metrics.Collector
}

func (d *WSDialer) Dial(ctx context.Context) (Socket, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	if d.Tokens != nil {
		token, err := d.Tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("auth token: %w", err)
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return newConn(ws, d.Metrics), nil
}

// Conn is a Socket over a websocket connection carrying JSON envelopes.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	metrics *metrics.Collector

	mu       sync.RWMutex
	handlers map[models.EventName]Handler

	listenOnce sync.Once
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

func newConn(ws *websocket.Conn, m *metrics.Collector) *Conn {
	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, 64),
		done:     make(chan struct{}),
		metrics:  m,
		handlers: make(map[models.EventName]Handler),
	}
	if m != nil {
		m.SocketsOpen.Inc()
	}
	c.wg.Add(1)
	go c.writePump()
	return c
}

func (c *Conn) On(event models.EventName, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Listen starts dispatching incoming events. Calls after the first are no-ops.
func (c *Conn) Listen() {
	c.listenOnce.Do(func() {
		c.wg.Add(1)
		go c.readPump()
	})
}

func (c *Conn) Emit(event models.EventName, payload interface{}) error {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Close tears the connection down and waits for its goroutines.
func (c *Conn) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.metrics != nil {
			c.metrics.SocketsOpen.Dec()
		}
	})
}

func (c *Conn) readPump() {
	defer func() {
		c.wg.Done()
		c.shutdown()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Error("WebSocket read error: %v", err)
				}
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logger.Warn("Dropping malformed frame: %v", err)
			continue
		}

		c.mu.RLock()
		h := c.handlers[env.Event]
		c.mu.RUnlock()
		if h != nil {
			h(env.Data)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("WebSocket write error: %v", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			// flush frames queued before Close
			for pending := true; pending; {
				select {
				case msg := <-c.send:
					if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
						pending = false
					}
				default:
					pending = false
				}
			}
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
