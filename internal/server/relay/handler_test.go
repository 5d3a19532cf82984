package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/server/auth"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("relay-test-secret")

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := newTestHub()
	handler := NewHandler(hub, testSecret, hub.logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	ticket, err := auth.GenerateRoomTicket(room, testSecret, time.Minute)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "join", Room: room, Ticket: ticket}))

	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "joined", ack["type"])
	require.Equal(t, room, ack["room"])
}

func TestHandler_JoinAndFanOut(t *testing.T) {
	srv := newRelayServer(t)

	writer := dial(t, srv)
	reader := dial(t, srv)
	join(t, writer, "AB12C")
	join(t, reader, "AB12C")

	require.NoError(t, writer.WriteJSON(inboundMessage{
		Type:       "update",
		Ciphertext: "ct1",
		Version:    1,
	}))

	require.NoError(t, reader.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event UpdateEvent
	require.NoError(t, reader.ReadJSON(&event))

	assert.Equal(t, "updated", event.Type)
	assert.Equal(t, "ct1", event.Ciphertext)
	assert.Equal(t, int64(1), event.Version)

	// The sender must not hear its own hint back.
	require.NoError(t, writer.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var echo UpdateEvent
	assert.Error(t, writer.ReadJSON(&echo), "sender should time out waiting for an echo")
}

func TestHandler_RejectsBadTicket(t *testing.T) {
	srv := newRelayServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "join", Room: "AB12C", Ticket: "forged"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event["type"])
}

func TestHandler_RejectsTicketRoomMismatch(t *testing.T) {
	srv := newRelayServer(t)
	conn := dial(t, srv)

	ticket, err := auth.GenerateRoomTicket("OTHER", testSecret, time.Minute)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "join", Room: "AB12C", Ticket: ticket}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event["type"])
}

func TestHandler_UpdateBeforeJoin(t *testing.T) {
	srv := newRelayServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "update", Ciphertext: "ct", Version: 1}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event["type"])
}

func TestMarshalUpdateEvent(t *testing.T) {
	b, err := json.Marshal(UpdateEvent{Type: "updated", Ciphertext: "ct", Version: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"updated","ciphertext":"ct","version":7}`, string(b))
}
