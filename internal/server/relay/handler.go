package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/logging"
	"github.com/aryabasu21/OnlineClipboard/internal/server/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to relay connections and runs the
// per-connection protocol: one authenticated join, then update hints.
type Handler struct {
	hub       *Hub
	secretKey []byte
	upgrader  websocket.Upgrader
	logger    logging.Logger
}

func NewHandler(hub *Hub, secretKey []byte, logger logging.Logger) *Handler {
	return &Handler{
		hub:       hub,
		secretKey: secretKey,
		logger:    logger.With("module", "relay_handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The room ticket is the access control; origin checks add
			// nothing for a token-authenticated websocket.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), conn)
	go client.writePump()
	h.readLoop(r.Context(), client)
}

// readLoop owns the connection: it processes inbound frames until error or
// close, then tears membership down.
func (h *Handler) readLoop(ctx context.Context, c *Client) {
	defer func() {
		h.hub.Leave(c)
		close(c.send)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "connection dropped", "client", c.ID, "error", err)
			}
			return
		}

		switch msg.Type {
		case msgTypeJoin:
			if !h.handleJoin(ctx, c, msg) {
				return
			}
		case msgTypeUpdate:
			h.handleUpdate(ctx, c, msg)
		default:
			h.sendEvent(c, errorEvent{Type: "error", Error: "unknown message type"})
		}
	}
}

// handleJoin validates the room ticket and subscribes the connection.
// Returns false when the connection must be dropped.
func (h *Handler) handleJoin(ctx context.Context, c *Client, msg inboundMessage) bool {
	room, err := auth.GetRoomFromTicket(msg.Ticket, h.secretKey)
	if err != nil || (msg.Room != "" && msg.Room != room) {
		h.logger.Warn(ctx, "join rejected", "client", c.ID)
		h.sendEvent(c, errorEvent{Type: "error", Error: "invalid ticket"})
		return false
	}

	h.hub.Join(c, room)
	h.sendEvent(c, joinedEvent{Type: "joined", Room: room})
	return true
}

// handleUpdate fans the hint out to room peers. Publish failures are
// swallowed here: the ledger write already happened on the API path and
// peers reconcile on their own schedule.
func (h *Handler) handleUpdate(ctx context.Context, c *Client, msg inboundMessage) {
	if c.room == "" {
		h.sendEvent(c, errorEvent{Type: "error", Error: "join a room first"})
		return
	}

	payload, err := json.Marshal(UpdateEvent{
		Type:       "updated",
		Ciphertext: msg.Ciphertext,
		Version:    msg.Version,
	})
	if err != nil {
		h.logger.Error(ctx, "marshal update event", "error", err)
		return
	}

	delivered := h.hub.Publish(c.room, c, payload)
	h.logger.Debug(ctx, "hint published", "room", c.room, "version", msg.Version, "peers", delivered)
}

func (h *Handler) sendEvent(c *Client, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
