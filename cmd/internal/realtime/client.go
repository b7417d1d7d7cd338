package realtime

import (
	"sync"

	v1 "huddle/contracts/realtime/v1"
)

// Client is one authenticated websocket connection.
//
// UserID and the session token are fixed at handshake. Send is never closed
// by the server so concurrent broadcasters cannot panic; done signals shutdown.
type Client struct {
	ConnID string
	UserID string
	Send   chan v1.Envelope

	token     string
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID, userID, token string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID: connID,
		UserID: userID,
		Send:   make(chan v1.Envelope, sendQueueSize),
		token:  token,
		done:   make(chan struct{}),
	}
}

// Token is the session token presented at handshake.
func (c *Client) Token() string { return c.token }

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown. Idempotent.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() { close(c.done) })
}

// offer enqueues env without blocking. It reports false when the client is
// closing or its queue is full.
func (c *Client) offer(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
