package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/sirupsen/logrus"

	"mailwatch/models"
)

const (
	// DefaultReconnectDelay is the fixed wait between relay reconnect attempts.
	DefaultReconnectDelay = 3 * time.Second
	relayWriteWait        = 10 * time.Second
	relayEventBuffer      = 32
)

var (
	ErrRelayClosed       = errors.New("relay client is closed")
	ErrRelayDisconnected = errors.New("relay is not connected")
	ErrInvalidPayload    = errors.New("relay payload is not valid JSON")
)

// RelayOption tunes a RelayClient.
type RelayOption func(*RelayClient)

// WithReconnectDelay sets the wait between reconnect attempts. Zero disables
// reconnecting.
func WithReconnectDelay(d time.Duration) RelayOption {
	return func(r *RelayClient) { r.reconnectDelay = d }
}

func WithRelayLogger(logger *logrus.Entry) RelayOption {
	return func(r *RelayClient) { r.logger = logger }
}

// RelayClient is one peer of the broadcast hub. It publishes payloads and
// delivers everything the hub forwards to it on Events.
type RelayClient struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	logger         *logrus.Entry

	writeMu sync.Mutex
	conn    *websocket.Conn

	connected atomic.Bool
	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// DialRelay connects to the hub at url (e.g. "ws://localhost:3000/ws"). The
// first dial must succeed; later drops are retried while the client is open.
func DialRelay(ctx context.Context, url string, opts ...RelayOption) (*RelayClient, error) {
	r := &RelayClient{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		logger:         logrus.WithField("component", "relay_client"),
		events:         make(chan []byte, relayEventBuffer),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	conn, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.setConn(conn)

	r.wg.Add(1)
	go r.run(conn)
	return r, nil
}

// Events yields every payload received from the hub, including its system
// notices. The channel is closed after Close. Payloads are dropped when the
// consumer falls behind.
func (r *RelayClient) Events() <-chan []byte {
	return r.events
}

// Connected reports whether a socket is currently open.
func (r *RelayClient) Connected() bool {
	return r.connected.Load()
}

// Publish sends payload to the hub unmodified. The hub drops non-JSON, so it
// is rejected here.
func (r *RelayClient) Publish(payload []byte) error {
	if !json.Valid(payload) {
		return ErrInvalidPayload
	}
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.conn == nil {
		return ErrRelayDisconnected
	}
	_ = r.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
	if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("writing to relay: %w", err)
	}
	return nil
}

// PublishEnvelope encodes env and publishes it.
func (r *RelayClient) PublishEnvelope(env models.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return r.Publish(payload)
}

// Close disconnects and stops reconnecting. It waits for the reader to exit.
func (r *RelayClient) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)

		r.writeMu.Lock()
		if r.conn != nil {
			_ = r.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = r.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = r.conn.Close()
		}
		r.writeMu.Unlock()
	})
	r.wg.Wait()
	return nil
}

func (r *RelayClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", r.url, err)
	}
	return conn, nil
}

func (r *RelayClient) setConn(conn *websocket.Conn) {
	r.writeMu.Lock()
	r.conn = conn
	r.writeMu.Unlock()
	r.connected.Store(conn != nil)
}

func (r *RelayClient) run(conn *websocket.Conn) {
	defer r.wg.Done()
	defer close(r.events)

	for {
		r.readLoop(conn)
		r.setConn(nil)
		_ = conn.Close()

		if r.reconnectDelay <= 0 {
			return
		}
		conn = r.reconnect()
		if conn == nil {
			return
		}
	}
}

func (r *RelayClient) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				r.logger.WithError(err).Warn("Relay connection lost")
			}
			return
		}
		select {
		case r.events <- payload:
		default:
			r.logger.Debug("Relay event dropped, consumer is behind")
		}
	}
}

// reconnect retries with a fixed delay until it succeeds or the client is
// closed, in which case it returns nil.
func (r *RelayClient) reconnect() *websocket.Conn {
	for {
		select {
		case <-r.done:
			return nil
		case <-time.After(r.reconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), relayWriteWait)
		conn, err := r.dial(ctx)
		cancel()
		if err != nil {
			r.logger.WithError(err).Debug("Relay reconnect failed")
			continue
		}

		r.writeMu.Lock()
		select {
		case <-r.done:
			r.writeMu.Unlock()
			_ = conn.Close()
			return nil
		default:
		}
		r.conn = conn
		r.writeMu.Unlock()
		r.connected.Store(true)
		r.logger.WithField("url", r.url).Info("Relay reconnected")
		return conn
	}
}
