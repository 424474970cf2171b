package relay

import (
	"time"

	"github.com/fasthttp/websocket"
	"github.com/sirupsen/logrus"
)

// writeWait bounds a single frame write so a stalled peer only ever blocks
// its own writer.
const writeWait = 10 * time.Second

// Socket is the subset of a websocket connection the hub drives.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Serve runs one peer until its socket fails or the hub closes it. Reads
// happen on the calling goroutine, so messages from this peer reach OnMessage
// in arrival order; writes happen on a dedicated goroutine.
func (h *Hub) Serve(ws Socket, remote string) {
	c, err := h.Connect(remote)
	if err != nil {
		h.logger.WithError(err).WithField("remote", remote).Warn("Rejecting connection")
		_ = ws.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ws, c)
	}()

	h.readPump(ws, c)
	h.OnDisconnect(c)
	<-done
	_ = ws.Close()
}

func (h *Hub) readPump(ws Socket, c *Connection) {
	for {
		mt, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.WithError(err).WithField("conn_id", c.ID).Debug("Read failed")
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		h.OnMessage(c, payload)
	}
}

func (h *Hub) writePump(ws Socket, c *Connection) {
	for payload := range c.Outbound() {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"conn_id": c.ID,
				"remote":  c.Remote,
			}).Warn("Write failed, closing connection")
			// Unblocks the reader, which then deregisters c.
			_ = ws.Close()
			for range c.Outbound() {
			}
			return
		}
	}
	// Queue closed by the hub: say goodbye if the socket still works.
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()
}
