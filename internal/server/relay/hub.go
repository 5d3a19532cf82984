// Package relay implements the realtime broadcast path: a websocket hub of
// rooms keyed by session code, fanning update hints out to room peers.
//
// The relay is deliberately decoupled from the ledger. Delivery is
// best-effort and unacknowledged; a missed broadcast degrades to "slightly
// stale until next reconciliation", never a correctness violation, because
// the persisted ledger stays the source of truth.
package relay

import (
	"context"
	"sync"

	"github.com/aryabasu21/OnlineClipboard/internal/logging"
)

// Hub owns all room membership state. There is no membership anywhere else;
// join and leave go through here and disconnects clean up automatically.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger.With("module", "relay_hub"),
	}
}

// Join subscribes c to room, implicitly leaving any previous room first
// (a connection is in at most one room).
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.room != "" {
		h.removeLocked(c)
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.room = room
}

// Leave unsubscribes c and discards its room when it was the last member.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Publish fans payload out to every member of room except sender. Slow
// consumers whose outbound buffer is full are skipped rather than awaited;
// the number of peers actually enqueued is returned.
func (h *Hub) Publish(room string, sender *Client, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for member := range h.rooms[room] {
		if member == sender {
			continue
		}
		select {
		case member.send <- payload:
			delivered++
		default:
			h.logger.Warn(context.Background(), "dropping hint for slow peer",
				"room", room, "client", member.ID)
		}
	}
	return delivered
}

// RoomSize reports the current member count of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
