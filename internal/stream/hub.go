// Package stream pushes live workspace updates to browser tabs over
// WebSocket connections.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendQueueSize = 64
	writeTimeout  = 5 * time.Second
)

// client is one connected view. Messages are written by a single goroutine
// in the order they were published. Until activate is called, published
// messages are held back so that the snapshot goes out first.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	ready   bool
	pending [][]byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:  conn,
		send:  make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
		ready: true,
	}
}

// newPendingClient returns a client that buffers messages until activate.
func newPendingClient(conn *websocket.Conn) *client {
	c := newClient(conn)
	c.ready = false
	return c
}

func (c *client) close(reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, reason)
		}
	})
}

// enqueue hands data to the writer. It reports false if the client is
// closed or too slow to keep up.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		if len(c.pending) >= sendQueueSize {
			return false
		}
		c.pending = append(c.pending, data)
		return true
	}
	return c.push(data)
}

// activate queues first, then every message held back since registration.
func (c *client) activate(first []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.push(first) {
		return false
	}
	for _, data := range c.pending {
		if !c.push(data) {
			return false
		}
	}
	c.pending = nil
	c.ready = true
	return true
}

func (c *client) push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("WebSocket write error", "error", err)
				c.close("write failed")
				return
			}
		}
	}
}

// Hub tracks the live connections of every tab session.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) register(key string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.active[key]; !ok {
		h.active[key] = make(map[*client]struct{})
	}
	h.active[key][c] = struct{}{}
	slog.Info("Transcript stream registered", "session_key", key, "connections", len(h.active[key]))
}

func (h *Hub) unregister(key string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.active[key]; ok {
		if _, exists := clients[c]; exists {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.active, key)
			}
			slog.Info("Transcript stream unregistered", "session_key", key)
		}
	}
}

// Publish sends v as JSON to every connection of key. Slow connections are
// dropped rather than allowed to stall the publisher.
func (h *Hub) Publish(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal stream event", "error", err, "session_key", key)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.active[key]))
	for c := range h.active[key] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(data) {
			slog.Warn("Dropping slow transcript stream", "session_key", key)
			c.close("client too slow")
			h.unregister(key, c)
		}
	}
}

// Count returns the number of live connections for key.
func (h *Hub) Count(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[key])
}

// CloseSession terminates every connection of key.
func (h *Hub) CloseSession(key string) {
	h.mu.Lock()
	clients := h.active[key]
	delete(h.active, key)
	h.mu.Unlock()

	for c := range clients {
		c.close("session closed")
	}
	if len(clients) > 0 {
		slog.Info("Transcript streams closed", "session_key", key, "count", len(clients))
	}
}
