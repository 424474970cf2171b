package relay

import (
	"errors"
	"sync"
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("outbound queue full")
)

// Connection is one peer registered with a Hub. Its outbound queue is drained
// by the peer's writer; the hub only ever enqueues.
type Connection struct {
	ID     string
	Remote string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newConnection(id, remote string, buffer int) *Connection {
	return &Connection{
		ID:     id,
		Remote: remote,
		send:   make(chan []byte, buffer),
	}
}

// Outbound yields payloads to write to the peer, in enqueue order. The channel
// is closed when the connection is closed.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// IsOpen reports whether the connection still accepts payloads.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// enqueue never blocks. A full queue means the peer cannot keep up; the
// caller must disconnect it rather than skip the payload.
func (c *Connection) enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errQueueFull
	}
}

// close is idempotent.
func (c *Connection) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}
