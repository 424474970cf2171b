// Package relay implements the broadcast hub: every JSON payload received
// from one connection is forwarded, byte for byte, to every other open
// connection. The hub keeps no history and gives no delivery guarantee.
package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mailwatch/models"
)

// DefaultSendBuffer is the per-connection outbound queue length.
const DefaultSendBuffer = 1024

var ErrHubClosed = errors.New("relay hub is closed")

// Options tune a Hub. Zero values select the defaults.
type Options struct {
	SendBuffer int
	Logger     *logrus.Entry
	Now        func() time.Time
}

// Hub is a registry of live connections. It is safe for concurrent use;
// each instance is independent.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	closed bool

	sendBuffer int
	logger     *logrus.Entry
	now        func() time.Time
}

func NewHub(opts Options) *Hub {
	h := &Hub{
		conns:      make(map[string]*Connection),
		sendBuffer: opts.SendBuffer,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = DefaultSendBuffer
	}
	if h.logger == nil {
		h.logger = logrus.WithField("component", "relay")
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Connect registers a new connection and queues the system notice for it.
// The notice is the only payload the hub originates.
func (h *Hub) Connect(remote string) (*Connection, error) {
	c := newConnection(uuid.NewString(), remote, h.sendBuffer)

	notice, err := json.Marshal(models.NewSystemEnvelope(h.now()))
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.conns[c.ID] = c
	total := len(h.conns)
	h.mu.Unlock()

	c.enqueue(notice)

	h.logger.WithFields(logrus.Fields{
		"conn_id":     c.ID,
		"remote":      remote,
		"connections": total,
	}).Info("New WebSocket connection")
	return c, nil
}

// OnMessage forwards payload from origin to every other open connection and
// returns how many recipients accepted it. Payloads that are not valid JSON
// are logged and dropped. A recipient whose queue is full is disconnected, so
// every peer still open has received every payload forwarded to it.
func (h *Hub) OnMessage(origin *Connection, payload []byte) int {
	log := h.logger.WithField("conn_id", origin.ID)

	if !json.Valid(payload) {
		log.WithField("text", truncate(payload, 256)).Info("Received non-JSON text message, not forwarded")
		return 0
	}

	var head struct {
		Type string `json:"type"`
	}
	// Non-object JSON is still forwarded; the type is only for the log line.
	_ = json.Unmarshal(payload, &head)

	recipients := h.snapshot(origin)
	delivered := 0
	for _, c := range recipients {
		switch err := c.enqueue(payload); {
		case err == nil:
			delivered++
		case errors.Is(err, errQueueFull):
			log.WithFields(logrus.Fields{
				"peer_id": c.ID,
				"remote":  c.Remote,
				"buffer":  h.sendBuffer,
			}).Warn("Peer outbound queue full, disconnecting")
			h.OnDisconnect(c)
		}
	}

	log.WithFields(logrus.Fields{
		"type":       head.Type,
		"bytes":      len(payload),
		"recipients": len(recipients),
		"delivered":  delivered,
	}).Debug("Received message")
	return delivered
}

// OnDisconnect deregisters c and closes its queue. Safe to call twice.
func (h *Hub) OnDisconnect(c *Connection) {
	h.mu.Lock()
	_, ok := h.conns[c.ID]
	delete(h.conns, c.ID)
	total := len(h.conns)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.WithFields(logrus.Fields{
			"conn_id":     c.ID,
			"remote":      c.Remote,
			"connections": total,
		}).Info("Client disconnected")
	}
}

// Close closes every connection and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	h.logger.WithField("connections", len(conns)).Info("Relay hub closed")
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot copies the recipient set so that forwarding never holds the
// registry lock while touching connection queues.
func (h *Hub) snapshot(exclude *Connection) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Connection, 0, len(h.conns))
	for id, c := range h.conns {
		if id == exclude.ID {
			continue
		}
		out = append(out, c)
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
