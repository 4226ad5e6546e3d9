// Package realtime fans session lifecycle events out to connected WebSocket
// subscribers. Every subscriber receives every session's events; per-client
// buffering bounds the damage a slow subscriber can do.
package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

const outboundBufferSize = 64

// Client is one connected realtime subscriber.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan any

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan any, outboundBufferSize),
	}
}

// ID returns the subscriber id.
func (c *Client) ID() string {
	return c.id
}

// Queue enqueues a message for delivery. Returns false if the client is
// closed or its outbound buffer is full, which marks it for disconnection.
func (c *Client) Queue(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// WriteLoop serializes queued messages onto the connection. It returns on
// the first write error or when the client is closed.
func (c *Client) WriteLoop() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// Close tears the connection down. Safe to call more than once; a Queue
// racing Close sees the closed flag instead of a closed channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
	close(c.send)
}
