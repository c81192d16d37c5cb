package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobboard/server/internal/events"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == want }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PeriodicBroadcast(t *testing.T) {
	hub := NewHub(20*time.Millisecond, zerolog.Nop())
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	first := dial(t, srv, "/")
	second := dial(t, srv, "/ws")
	waitForCount(t, hub, 2)

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, Message{Type: "update", Message: "New job posted!"}, msg)
	}
}

func TestHub_PublishJobPosted(t *testing.T) {
	hub := NewHub(time.Hour, zerolog.Nop())
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	conn := dial(t, srv, "/ws")
	waitForCount(t, hub, 1)

	require.NoError(t, hub.Publish(context.Background(), events.Event{Type: events.JobApplied, JobID: "j1"}))
	require.NoError(t, hub.Publish(context.Background(), events.Event{Type: events.JobPosted, JobID: "j2", Title: "Go Developer"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, "New job posted: Go Developer", msg.Message)
}

func TestHub_ClientMessagesAreLogged(t *testing.T) {
	var buf syncBuffer
	hub := NewHub(time.Hour, zerolog.New(&buf))
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	conn := dial(t, srv, "/")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `"message":"hello"`)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "client connected")
	assert.Equal(t, 1, hub.Count())
}

func TestHub_DisconnectDeregisters(t *testing.T) {
	hub := NewHub(time.Hour, zerolog.Nop())
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	conn := dial(t, srv, "/")
	waitForCount(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForCount(t, hub, 0)

	// Broadcasting with nobody connected is a no-op.
	hub.Broadcast(Message{Type: MessageTypeUpdate, Message: "x"}, "ticker")
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(time.Hour, zerolog.Nop())
	slow := &client{id: "slow", send: make(chan []byte, 1)}
	fast := &client{id: "fast", send: make(chan []byte, 4)}
	require.True(t, hub.register(slow))
	require.True(t, hub.register(fast))

	hub.Broadcast(Message{Type: MessageTypeUpdate, Message: "one"}, "ticker")
	hub.Broadcast(Message{Type: MessageTypeUpdate, Message: "two"}, "ticker")

	assert.Equal(t, 1, hub.Count())
	assert.Len(t, fast.send, 2)

	// The dropped client's channel is closed after its buffered message.
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub(time.Hour, zerolog.Nop())
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	conn := dial(t, srv, "/")
	waitForCount(t, hub, 1)

	cancel()
	require.NoError(t, <-done)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, hub.Count())

	// Connections after shutdown are refused with a close frame.
	late := dial(t, srv, "/")
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub(time.Hour, zerolog.Nop())
	hub.Close()
	hub.Close()
	assert.False(t, hub.register(&client{send: make(chan []byte, 1)}))
}
