package realtime

import "encoding/json"

// Event names of the realtime channel. They must match the backend exactly.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnected    = "connected"
	EventError        = "error"
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventJoinedRoom   = "joined_room"
	EventLeftRoom     = "left_room"
	EventUserJoined   = "user_joined_room"
	EventUserLeft     = "user_left_room"
	EventRoomUpdated  = "room_updated"
	EventRoomDeleted  = "room_deleted"
	EventSendMessage  = "send_message"
	EventNewMessage   = "new_message"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventUserTyping   = "user_typing"
	EventUpdateLoc    = "update_location"
	EventUserLocation = "user_location_update"
	EventPing         = "ping"
	EventPong         = "pong"

	// EventReconnectFailed never crosses the wire; the transport raises it
	// locally once it stops retrying.
	EventReconnectFailed = "reconnect_failed"
)

// Disconnect reasons reported in the data of a local disconnect frame.
const (
	ReasonServerDisconnect = "server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// Frame is the JSON envelope of every message on the realtime channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DisconnectData is the payload of a local disconnect frame.
type DisconnectData struct {
	Reason string `json:"reason"`
}

// ReconnectFailedData is the payload of a local reconnect_failed frame.
type ReconnectFailedData struct {
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}
