package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwatch/models"
)

func newTestHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewHub(Options{SendBuffer: buffer, Now: func() time.Time { return now }})
	t.Cleanup(h.Close)
	return h
}

func connect(t *testing.T, h *Hub) *Connection {
	t.Helper()
	c, err := h.Connect("test")
	require.NoError(t, err)
	// Drain the system notice so tests only see forwarded payloads.
	select {
	case <-c.Outbound():
	default:
		t.Fatal("expected system notice")
	}
	return c
}

func drain(c *Connection) [][]byte {
	var out [][]byte
	for {
		select {
		case p, ok := <-c.Outbound():
			if !ok {
				return out
			}
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestHub_ConnectSendsSystemNotice(t *testing.T) {
	h := newTestHub(t, 4)

	c, err := h.Connect("127.0.0.1:1234")
	require.NoError(t, err)

	payload := <-c.Outbound()
	env, err := models.ParseEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, models.EnvelopeSystem, env.Type)
	assert.Equal(t, models.ConnectedMessage, env.Message)
	assert.Equal(t, "2026-01-02T03:04:05Z", env.Timestamp)
	assert.Equal(t, 1, h.Count())
}

func TestHub_ConnectionIDsAreUnique(t *testing.T) {
	h := newTestHub(t, 4)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := h.Connect("x")
		require.NoError(t, err)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestHub_ForwardsToEveryoneButOrigin(t *testing.T) {
	h := newTestHub(t, 8)
	a, b, c := connect(t, h), connect(t, h), connect(t, h)

	payload := []byte(`{"type":"email"}`)
	delivered := h.OnMessage(a, payload)

	assert.Equal(t, 2, delivered)
	assert.Empty(t, drain(a))
	assert.Equal(t, [][]byte{payload}, drain(b))
	assert.Equal(t, [][]byte{payload}, drain(c))
}

func TestHub_ForwardsPayloadByteForByte(t *testing.T) {
	h := newTestHub(t, 8)
	a, b := connect(t, h), connect(t, h)

	// Whitespace and key order must survive: the hub never re-encodes.
	payload := []byte("{ \"z\": 1,\n  \"a\": [1, 2.50, \"é\"] }")
	h.OnMessage(a, payload)

	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, string(payload), string(got[0]))
}

func TestHub_DropsNonJSON(t *testing.T) {
	h := newTestHub(t, 8)
	a, b := connect(t, h), connect(t, h)

	assert.Equal(t, 0, h.OnMessage(a, []byte("hello there")))
	assert.Equal(t, 0, h.OnMessage(a, []byte(`{"broken":`)))
	assert.Empty(t, drain(b))

	// Non-object JSON is still valid framing.
	assert.Equal(t, 1, h.OnMessage(a, []byte(`[1,2,3]`)))
	assert.Len(t, drain(b), 1)
}

func TestHub_PreservesPerSenderOrder(t *testing.T) {
	h := newTestHub(t, 128)
	a, b, c := connect(t, h), connect(t, h), connect(t, h)

	var want [][]byte
	for i := 0; i < 100; i++ {
		p := []byte(fmt.Sprintf(`{"seq":%d}`, i))
		want = append(want, p)
		h.OnMessage(a, p)
	}

	assert.Equal(t, want, drain(b))
	assert.Equal(t, want, drain(c))
}

func TestHub_NoDeliveryAfterDisconnect(t *testing.T) {
	h := newTestHub(t, 8)
	a, b := connect(t, h), connect(t, h)

	h.OnDisconnect(b)
	assert.False(t, b.IsOpen())
	assert.Equal(t, 1, h.Count())

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, h.OnMessage(a, []byte(`{"type":"email"}`)))
	})
	// Outbound is closed and empty.
	_, ok := <-b.Outbound()
	assert.False(t, ok)

	// Disconnecting twice is harmless.
	assert.NotPanics(t, func() { h.OnDisconnect(b) })
}

func TestHub_OverflowDisconnectsSlowRecipient(t *testing.T) {
	h := newTestHub(t, 2)
	a, slow, fast := connect(t, h), connect(t, h), connect(t, h)

	var want [][]byte
	for i := 0; i < 5; i++ {
		p := []byte(fmt.Sprintf(`{"seq":%d}`, i))
		want = append(want, p)
		h.OnMessage(a, p)
		drain(fast)
	}

	// The slow peer keeps what fit, in order, then its queue is closed.
	assert.Equal(t, want[:2], drain(slow))
	_, ok := <-slow.Outbound()
	assert.False(t, ok)
	assert.False(t, slow.IsOpen())

	assert.True(t, fast.IsOpen())
	assert.Equal(t, 2, h.Count())
	assert.Equal(t, 1, h.OnMessage(a, []byte(`{"seq":5}`)))
}

func TestHub_DrainingRecipientGetsBurstOrIsDisconnected(t *testing.T) {
	h := newTestHub(t, 4)
	a, b := connect(t, h), connect(t, h)

	received := make(chan [][]byte)
	go func() {
		var got [][]byte
		for p := range b.Outbound() {
			got = append(got, p)
		}
		received <- got
	}()

	const n = 500
	for i := 0; i < n; i++ {
		h.OnMessage(a, []byte(fmt.Sprintf(`{"seq":%d}`, i)))
	}
	stillOpen := b.IsOpen()
	h.OnDisconnect(b)

	got := <-received
	for i, p := range got {
		require.Equal(t, fmt.Sprintf(`{"seq":%d}`, i), string(p))
	}
	if stillOpen {
		assert.Len(t, got, n)
	}
}

func TestHub_CloseRejectsNewConnections(t *testing.T) {
	h := NewHub(Options{})
	c, err := h.Connect("x")
	require.NoError(t, err)

	h.Close()
	assert.False(t, c.IsOpen())
	assert.Equal(t, 0, h.Count())

	_, err = h.Connect("y")
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_InstancesAreIndependent(t *testing.T) {
	h1, h2 := newTestHub(t, 4), newTestHub(t, 4)
	a := connect(t, h1)
	b := connect(t, h2)

	assert.Equal(t, 0, h1.OnMessage(a, []byte(`{}`)))
	assert.Empty(t, drain(b))
}

func TestHub_ConcurrentConnectForwardDisconnect(t *testing.T) {
	h := newTestHub(t, 1024)
	origin := connect(t, h)
	stable := connect(t, h)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c, err := h.Connect("churn")
			if err == nil {
				h.OnDisconnect(c)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.OnMessage(origin, []byte(fmt.Sprintf(`{"seq":%d}`, i)))
		}
	}()
	wg.Wait()

	got := drain(stable)
	require.Len(t, got, 200)
	for i, p := range got {
		var msg struct{ Seq int }
		require.NoError(t, json.Unmarshal(p, &msg))
		assert.Equal(t, i, msg.Seq)
	}
}
