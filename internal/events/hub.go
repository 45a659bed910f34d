// Package events pushes detection and anomaly signals to connected
// WebSocket clients so operators can watch the gate live. Delivery is
// best-effort: slow clients are dropped, full buffers discard events.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

// client is one connected WebSocket peer.
type client struct {
	conn *websocket.Conn
	send chan Event
	ip   string
}

// Hub maintains the set of connected clients and fans events out to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	upgrader   websocket.Upgrader
	config     config.EventsConfig
	logger     *logger.Logger
	mu         sync.RWMutex
	done       chan struct{}
}

// NewHub creates a WebSocket event hub.
func NewHub(cfg config.EventsConfig, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		config: cfg,
		logger: log,
		done:   make(chan struct{}),
	}
}

// Run processes registration and broadcast traffic until Stop is called.
func (h *Hub) Run() {
	h.logger.Info("Starting event hub", zap.String("path", h.config.Path))

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("Event client connected", zap.String("client_ip", c.ip))

		case c := <-h.unregister:
			h.removeClient(c)

		case event := <-h.broadcast:
			h.fanOut(event)

		case <-h.done:
			return
		}
	}
}

// Stop terminates the hub loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Publish queues an event for broadcast, dropping it if the hub is saturated.
func (h *Hub) Publish(event Event) {
	if !h.config.Enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

// fanOut delivers an event to every connected client
func (h *Hub) fanOut(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			// Client can't keep up; drop it rather than block the hub.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// removeClient unregisters a client
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug("Event client disconnected", zap.String("client_ip", c.ip))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades an HTTP request and attaches the peer to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Event, 64),
		ip:   r.RemoteAddr,
	}

	if !h.attach(c) {
		conn.Close()
		return
	}

	go h.writeLoop(c)
	go h.readLoop(c)
}

// attach hands a client to the hub loop. It reports false once the hub has
// stopped, so an upgrade racing shutdown closes instead of blocking forever.
func (h *Hub) attach(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// detach removes a client, tolerating a hub that already stopped.
func (h *Hub) detach(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// writeLoop pushes events and pings to the client
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client messages and enforces pong liveness
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(h.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}
