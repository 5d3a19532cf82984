package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at a fraction of it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize caps inbound frames; payloads above the inline cap
	// go through the offload path, never the relay.
	maxMessageSize = 96 * 1024
	// sendBufferSize is the per-connection outbound queue. When it is
	// full the peer is slow and hints are dropped, not queued unboundedly.
	sendBufferSize = 16
)

// Client is one websocket connection. Its room membership lives in the Hub;
// room is only written under the hub's lock.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	room string
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// writePump drains the send queue onto the connection and keeps the
// connection alive with pings. It exits when the send channel closes or a
// write fails; the reader side owns connection teardown.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
