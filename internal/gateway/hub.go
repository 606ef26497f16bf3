// Package gateway is the Downstream Client Registry: it accepts websocket
// connections, sends each one the current snapshot on join, and fans out
// every subsequent broadcast. There is no subscription protocol — every
// client receives the identical, full snapshot.
package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub is the set of connected downstream clients, guarded by one lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Accept registers conn as a Client, sends it the given initial snapshot
// payload immediately, and starts its read pump and ping loop. The
// returned Client is already in the registry (or already dropped, if the
// initial send failed).
func (h *Hub) Accept(conn *websocket.Conn, initialSnapshot []byte) *Client {
	c := newClient(conn, h)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		c.readPump()
		close(stop)
	}()
	go c.pingLoop(stop)

	if len(initialSnapshot) > 0 {
		c.Send(initialSnapshot)
	}
	return c
}

// Remove drops a client from the registry and closes its connection.
// Idempotent: removing an already-removed client is a no-op.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		c.closeSend()
	}
}

// Snapshot returns a consistent copy of the current client set, for the
// broadcaster to fan out against without holding the registry lock for the
// whole send.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
