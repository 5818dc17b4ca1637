package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaipatel248/cric-alert/server/internal/engine"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/notify"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

// TypePong answers a client "ping" text frame.
const TypePong = "pong"

// Message is the JSON envelope sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Source is the engine surface the hub reads from.
type Source interface {
	Get(id string) (monitor.Monitor, error)
	Subscribe(id string) (*notify.Subscription, error)
}

// Hub manages WebSocket clients, each attached to one monitor's event stream.
type Hub struct {
	src      Source
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// client represents one connected WebSocket client.
type client struct {
	monitorID string
	conn      *websocket.Conn
	send      chan []byte
}

// New creates a Hub over src. origins is the allow list checked against the
// Origin header; "*" or an empty list allows every origin.
func New(src Source, origins []string) *Hub {
	h := &Hub{
		src:     src,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return allowAll || origin == "" || allowed[origin]
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeMonitor upgrades the connection and streams monitor id's events.
// The current monitor state is sent immediately on connect. An unknown id
// is answered with 404 before the upgrade.
func (h *Hub) ServeMonitor(w http.ResponseWriter, r *http.Request, id string) {
	// Subscribe before reading the snapshot so no event falls in between.
	sub, err := h.src.Subscribe(id)
	if errors.Is(err, engine.ErrNotFound) {
		http.Error(w, "monitor not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	m, err := h.src.Get(id)
	if errors.Is(err, engine.ErrNotFound) {
		http.Error(w, "monitor not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		monitorID: id,
		conn:      conn,
		send:      make(chan []byte, sendBufSize),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	h.enqueue(c, monitorUpdate(m))

	go h.forward(c, sub)
	go c.writePump()
	h.readPump(c) // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// enqueue hands msg to c's writer. A client whose buffer is full is
// disconnected. It reports whether c is still connected.
func (h *Hub) enqueue(c *client, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: encode message", "monitor", c.monitorID, "type", msg.Type, "err", err)
		return true
	}

	h.mu.RLock()
	_, ok := h.clients[c]
	full := false
	if ok {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		slog.Warn("ws: client too slow, disconnecting", "monitor", c.monitorID)
		h.unregister(c)
		return false
	}
	return ok
}

// forward relays engine events to c until the subscription or the client
// ends. A closed subscription means the monitor was deleted.
func (h *Hub) forward(c *client, sub *notify.Subscription) {
	for ev := range sub.C {
		if !h.enqueue(c, Message{Type: string(ev.Type), Data: ev.Data}) {
			return
		}
	}
	h.unregister(c)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func monitorUpdate(m monitor.Monitor) Message {
	return Message{Type: string(notify.TypeMonitorUpdate), Data: engine.DetailOf(m)}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles client commands and control frames. "ping" is answered
// with a pong message and "refresh" with the current monitor state. Blocks
// until the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		switch strings.TrimSpace(string(data)) {
		case "ping":
			h.enqueue(c, Message{Type: TypePong})
		case "refresh":
			m, err := h.src.Get(c.monitorID)
			if err != nil {
				return
			}
			h.enqueue(c, monitorUpdate(m))
		}
	}
}
