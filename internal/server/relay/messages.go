package relay

// inboundMessage is what a connected client may send: a join (with its room
// ticket) or an update hint for its room's peers.
type inboundMessage struct {
	Type       string `json:"type"`
	Room       string `json:"room,omitempty"`
	Ticket     string `json:"ticket,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
	Version    int64  `json:"version,omitempty"`
}

const (
	msgTypeJoin   = "join"
	msgTypeUpdate = "update"
)

// UpdateEvent is the hint fanned out to room peers. It is advisory only:
// receivers reconcile against the ledger before trusting it as a basis for
// further edits.
type UpdateEvent struct {
	Type       string `json:"type"`
	Ciphertext string `json:"ciphertext"`
	Version    int64  `json:"version"`
}

// joinedEvent acknowledges a successful join.
type joinedEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// errorEvent reports a protocol or auth failure before the connection is
// dropped.
type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
