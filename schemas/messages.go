package schemas

// Inbound message types.
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Outbound message types. TypePing and TypePong are shared: the server both
// answers client pings and sends its own latency probes.
const (
	TypeState        = "state"
	TypeStateDelta   = "state-delta"
	TypePlayerJoined = "player-joined"
	TypePlayerLeft   = "player-left"
	TypeError        = "error"
	TypeRoomClosed   = "room-closed"
)

// Error codes carried by ErrorPayload.
const (
	ErrorCodeCapacity  = "capacity"
	ErrorCodeTransport = "transport"
	ErrorCodeClosed    = "closed"
)

// InboundMessage is everything a client may send. A single flat payload keeps
// decoding identical for JSON and msgpack frames; handlers read only the
// fields their type defines.
type InboundMessage struct {
	Type    string         `json:"type"`
	Payload InboundPayload `json:"payload"`
}

type InboundPayload struct {
	Username string `json:"username,omitempty"`
	Faction  string `json:"faction,omitempty"`
	Seq      uint64 `json:"seq,omitempty"`
}

type OutboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// PlayerJoinedPayload is the public player record. It never carries
// resource counters.
type PlayerJoinedPayload struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Faction  string `json:"faction"`
}

type PlayerLeftPayload struct {
	Id string `json:"id"`
}

type ProbePayload struct {
	Seq    uint64 `json:"seq,omitempty"`
	SentAt int64  `json:"sentAt,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// JoinOptions are read from the websocket upgrade request.
type JoinOptions struct {
	Username string
	Faction  string
	Encoding string
}
