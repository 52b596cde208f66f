package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket timing and size limits.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// sendQueueSize bounds the per-client backlog. Messages beyond it are dropped.
	sendQueueSize = 16
)

// welcome is the first frame a client receives. It tells the client which
// id to send back in the X-Connection-ID header.
type welcome struct {
	Kind         string `json:"event"`
	ConnectionID string `json:"connectionId"`
}

// client is one live WebSocket connection.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is the registry of WebSocket clients connected to this instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Serve registers conn under a fresh connection id and pumps messages until
// the client disconnects. It blocks for the lifetime of the connection.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	h.register(c)
	defer h.unregister(c)

	go c.writePump()

	hello, _ := json.Marshal(welcome{Kind: "connected", ConnectionID: c.id})
	h.deliver(c.id, hello)

	slog.Debug("notification client connected", slog.String("conn_id", c.id))
	c.readPump()
	slog.Debug("notification client disconnected", slog.String("conn_id", c.id))
}

// Notify pushes ev to a single connection on this instance.
func (h *Hub) Notify(_ context.Context, connID string, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("encoding notification", slog.Any("error", err))
		return
	}
	if !h.deliver(connID, msg) {
		slog.Debug("notification target not connected here",
			slog.String("conn_id", connID),
			slog.String("event", string(ev.Kind)),
		)
	}
}

// Broadcast pushes ev to every connection on this instance.
func (h *Hub) Broadcast(_ context.Context, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("encoding notification", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(msg)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// deliver queues msg for connID. Reports false when the id is unknown.
func (h *Hub) deliver(connID string, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	c.enqueue(msg)
	return true
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// unregister removes c and closes its queue, which stops the write pump.
// The queue is only closed while holding the write lock so no deliver can
// race with it.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		close(c.send)
		delete(h.clients, c.id)
	}
}

// enqueue never blocks. Callers hold the hub read lock.
func (c *client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("notification queue full, dropping message", slog.String("conn_id", c.id))
	}
}

// readPump drains client frames so pong handling works. Clients are not
// expected to send anything meaningful.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump writes queued messages and keepalive pings. It owns closing
// the underlying connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
