package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groovify/beatsync/internal/protocol"
)

type testServer struct {
	*httptest.Server
	connects atomic.Int32
	received chan protocol.Envelope

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{received: make(chan protocol.Envelope, 16)}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.connects.Add(1)
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.received <- env
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) last() *websocket.Conn {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.conns[len(ts.conns)-1]
}

func fastBackoff() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)
}

func TestWebsocketURL(t *testing.T) {
	got, err := WebsocketURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", got)

	got, err = WebsocketURL("wss://example.com/custom")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/custom", got)

	_, err = WebsocketURL("ftp://example.com")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New()
	err := c.Send(protocol.EventClearQueue, protocol.ClearQueue{Room: "party"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectSendAndReceive(t *testing.T) {
	ts := newTestServer(t)
	c := New(WithBackoff(fastBackoff))

	connected := make(chan struct{}, 1)
	c.Subscribe(protocol.EventConnect, func(Event) { connected <- struct{}{} })
	updates := make(chan protocol.AdminStatus, 1)
	c.Subscribe(protocol.EventAdminStatus, func(ev Event) {
		var p protocol.AdminStatus
		require.NoError(t, ev.Decode(&p))
		updates <- p
	})

	require.NoError(t, c.Connect(ts.URL))
	require.NoError(t, c.Connect(ts.URL))
	<-connected
	defer c.Disconnect()

	require.NoError(t, c.Send(protocol.EventJoinRoom, protocol.JoinRoom{Room: "party", IsAdmin: true}))
	select {
	case env := <-ts.received:
		assert.Equal(t, protocol.EventJoinRoom, env.Type)
		var p protocol.JoinRoom
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, protocol.JoinRoom{Room: "party", IsAdmin: true}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive join_room")
	}

	payload, _ := json.Marshal(protocol.AdminStatus{IsAdmin: true})
	require.NoError(t, ts.last().WriteJSON(protocol.Envelope{Type: protocol.EventAdminStatus, Payload: payload}))
	select {
	case p := <-updates:
		assert.True(t, p.IsAdmin)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive admin_status")
	}

	assert.Equal(t, int32(1), ts.connects.Load())
}

func TestDisconnectIsFinal(t *testing.T) {
	ts := newTestServer(t)
	c := New(WithBackoff(fastBackoff))

	var disconnects atomic.Int32
	c.Subscribe(protocol.EventDisconnect, func(Event) { disconnects.Add(1) })

	require.NoError(t, c.Connect(ts.URL))
	waitConnected(t, c)

	c.Disconnect()
	assert.False(t, c.Connected())
	assert.Equal(t, int32(1), disconnects.Load())
	assert.True(t, errors.Is(c.Send(protocol.EventClearQueue, protocol.ClearQueue{Room: "x"}), ErrNotConnected))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.connects.Load())
	c.Disconnect()
}

func TestReconnectsAfterDrop(t *testing.T) {
	ts := newTestServer(t)
	c := New(WithBackoff(fastBackoff))

	var connects, disconnects atomic.Int32
	c.Subscribe(protocol.EventConnect, func(Event) { connects.Add(1) })
	c.Subscribe(protocol.EventDisconnect, func(Event) { disconnects.Add(1) })

	require.NoError(t, c.Connect(ts.URL))
	defer c.Disconnect()
	require.Eventually(t, func() bool { return connects.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ts.last().Close())

	require.Eventually(t, func() bool { return connects.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
	assert.Equal(t, int32(2), ts.connects.Load())
}
