package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/shadowstream/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 50 * time.Second

	// Queued messages per client before it is dropped
	sendBuffer = 16
)

// ReloadMessage is sent to browsers after templates change.
type ReloadMessage struct {
	Type      string    `json:"type"`
	Templates []string  `json:"templates,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one connected browser.
type Client struct {
	send chan []byte
}

// Hub keeps the set of connected clients and fans reload messages out to
// them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	origins []string
	logger  logging.Logger
}

// NewHub creates a hub accepting connections from the given origin
// patterns, in addition to same-host requests.
func NewHub(logger logging.Logger, origins ...string) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		origins: origins,
		logger:  logger.WithComponent("websocket"),
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. Clients whose queue is full are
// disconnected.
func (h *Hub) Broadcast(msg ReloadMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and pumps messages to the client until
// either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), h.logger)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	client := &Client{send: make(chan []byte, sendBuffer)}
	h.register(client)
	defer h.unregister(client)
	logger.Debug(r.Context(), "WebSocket client connected", "clients", h.Len())

	// Browsers never send anything; CloseRead handles control frames and
	// cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	h.writePump(ctx, conn, client)
}

func (h *Hub) writePump(ctx context.Context, conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-client.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "disconnected")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
