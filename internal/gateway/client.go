package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 25 * time.Second
	pingTimeout   = 10 * time.Second
	closeTimeout  = 1 * time.Second
	maxFrameBytes = 2 << 20 // 2 MiB
)

// Client is a single downstream websocket peer. Outbound queue size is
// zero by design: a send either completes within the write deadline or the
// client is dropped. There is never a backlog and never a retry.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{conn: conn, hub: hub}
}

// Send writes payload to the client. On any error it drops and closes the
// client itself — the caller (broadcaster or Hub.Accept) does not need to
// also call Hub.Remove, though doing so again is harmless.
func (c *Client) Send(payload []byte) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(pingTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.drop()
		return false
	}
	return true
}

func (c *Client) drop() {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout))
	c.conn.Close()
	c.hub.Remove(c)
}

// closeSend closes the underlying connection once. Hub.Remove calls this
// after deregistering a client; safe to call more than once (readPump's
// own drop() may have already closed the same connection).
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump discards every inbound frame — there is no client protocol —
// until the connection closes, at which point the client is dropped.
func (c *Client) readPump() {
	defer c.drop()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pingLoop sends a websocket ping every pingInterval so idle connections
// are detected and reaped by the client's own read deadline.
func (c *Client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(pingTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.drop()
				return
			}
		}
	}
}
