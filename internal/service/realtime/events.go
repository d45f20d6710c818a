package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
	rt "github.com/zhouzirui/maps-app/client/internal/model/realtime"
	roommodel "github.com/zhouzirui/maps-app/client/internal/model/room"
)

// ErrUnknownEvent is returned by DecodeFrame for event names outside the contract.
var ErrUnknownEvent = errors.New("unknown realtime event")

// Event is one decoded inbound frame. The set of implementations is closed.
type Event interface {
	Name() string
}

type (
	ConnectEvent    struct{}
	DisconnectEvent struct {
		Reason string
	}
	ReconnectFailedEvent struct {
		Attempts int
		Error    string
	}
	// ConnectedEvent is the server's acknowledgement of the handshake credential.
	ConnectedEvent struct {
		UserID string
		Data   json.RawMessage
	}
	ErrorEvent struct {
		Message string
	}
	JoinedRoomEvent struct {
		Room         roommodel.Room
		Participants []roommodel.Participant
		Messages     []roommodel.Message
	}
	LeftRoomEvent struct {
		RoomID string
	}
	UserJoinedEvent struct {
		Participant roommodel.Participant
	}
	UserLeftEvent struct {
		UserID      string
		DisplayName string
	}
	// RoomUpdatedEvent carries only the fields the server changed.
	RoomUpdatedEvent struct {
		RoomID string
		Patch  RoomPatch
	}
	RoomDeletedEvent struct {
		RoomID string
	}
	NewMessageEvent struct {
		Message roommodel.Message
	}
	UserTypingEvent struct {
		UserID      string
		DisplayName string
		IsTyping    bool
	}
	LocationUpdateEvent struct {
		UserID   string
		Location geomodel.Location
	}
	PongEvent struct{}
)

func (ConnectEvent) Name() string         { return rt.EventConnect }
func (DisconnectEvent) Name() string      { return rt.EventDisconnect }
func (ReconnectFailedEvent) Name() string { return rt.EventReconnectFailed }
func (ConnectedEvent) Name() string       { return rt.EventConnected }
func (ErrorEvent) Name() string           { return rt.EventError }
func (JoinedRoomEvent) Name() string      { return rt.EventJoinedRoom }
func (LeftRoomEvent) Name() string        { return rt.EventLeftRoom }
func (UserJoinedEvent) Name() string      { return rt.EventUserJoined }
func (UserLeftEvent) Name() string        { return rt.EventUserLeft }
func (RoomUpdatedEvent) Name() string     { return rt.EventRoomUpdated }
func (RoomDeletedEvent) Name() string     { return rt.EventRoomDeleted }
func (NewMessageEvent) Name() string      { return rt.EventNewMessage }
func (UserTypingEvent) Name() string      { return rt.EventUserTyping }
func (LocationUpdateEvent) Name() string  { return rt.EventUserLocation }
func (PongEvent) Name() string            { return rt.EventPong }

// DecodeFrame turns a wire frame into its typed event.
func DecodeFrame(f rt.Frame) (Event, error) {
	switch f.Event {
	case rt.EventConnect:
		return ConnectEvent{}, nil
	case rt.EventPong:
		return PongEvent{}, nil
	case rt.EventDisconnect:
		var data rt.DisconnectData
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return DisconnectEvent{Reason: data.Reason}, nil
	case rt.EventReconnectFailed:
		var data rt.ReconnectFailedData
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return ReconnectFailedEvent{Attempts: data.Attempts, Error: data.Error}, nil
	case rt.EventConnected:
		var data struct {
			UserID flexString `json:"userId"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return ConnectedEvent{UserID: string(data.UserID), Data: f.Data}, nil
	case rt.EventError:
		return ErrorEvent{Message: errorText(f.Data)}, nil
	case rt.EventJoinedRoom:
		var data struct {
			Room         wireRoom          `json:"room"`
			Participants []wireParticipant `json:"participants"`
			Messages     []wireMessage     `json:"messages"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		ev := JoinedRoomEvent{Room: data.Room.model()}
		for _, p := range data.Participants {
			ev.Participants = append(ev.Participants, p.model())
		}
		for _, m := range data.Messages {
			ev.Messages = append(ev.Messages, m.model())
		}
		return ev, nil
	case rt.EventLeftRoom:
		var data struct {
			RoomID flexString `json:"roomId"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return LeftRoomEvent{RoomID: string(data.RoomID)}, nil
	case rt.EventUserJoined:
		var data wireParticipant
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		p := data.model()
		if p.JoinedAt.IsZero() {
			p.JoinedAt = time.Time(data.Timestamp)
		}
		p.IsOnline = true
		return UserJoinedEvent{Participant: p}, nil
	case rt.EventUserLeft:
		var data struct {
			UserID      flexString `json:"userId"`
			DisplayName string     `json:"displayName"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return UserLeftEvent{UserID: string(data.UserID), DisplayName: data.DisplayName}, nil
	case rt.EventRoomUpdated:
		var data struct {
			Room struct {
				ID flexString `json:"id"`
				RoomPatch
			} `json:"room"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return RoomUpdatedEvent{RoomID: string(data.Room.ID), Patch: data.Room.RoomPatch}, nil
	case rt.EventRoomDeleted:
		var data struct {
			RoomID flexString `json:"roomId"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return RoomDeletedEvent{RoomID: string(data.RoomID)}, nil
	case rt.EventNewMessage:
		var data wireMessage
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return NewMessageEvent{Message: data.model()}, nil
	case rt.EventUserTyping:
		var data struct {
			UserID      flexString `json:"userId"`
			DisplayName string     `json:"displayName"`
			IsTyping    bool       `json:"isTyping"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return UserTypingEvent{UserID: string(data.UserID), DisplayName: data.DisplayName, IsTyping: data.IsTyping}, nil
	case rt.EventUserLocation:
		var data struct {
			UserID   flexString   `json:"userId"`
			Location wireLocation `json:"location"`
		}
		if err := decode(f, &data); err != nil {
			return nil, err
		}
		return LocationUpdateEvent{UserID: string(data.UserID), Location: data.Location.model()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

func decode(f rt.Frame, v any) error {
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Event, err)
	}
	return nil
}

// errorText accepts "text", {"message": "text"} or {"error": "text"}.
func errorText(data json.RawMessage) string {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Error
	}
	return string(data)
}

// flexString accepts JSON strings and numbers; the backend stamps some ids
// with Date.now().
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

// flexTime accepts RFC 3339 strings and epoch milliseconds.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", v, err)
		}
		*t = flexTime(parsed)
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	*t = flexTime(time.UnixMilli(int64(ms)))
	return nil
}

type wireRoom struct {
	ID              flexString       `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Status          roommodel.Status `json:"status"`
	OwnerID         flexString       `json:"ownerId"`
	MaxParticipants int              `json:"maxParticipants"`
	Metadata        map[string]any   `json:"metadata"`
}

func (w wireRoom) model() roommodel.Room {
	return roommodel.Room{
		ID:              string(w.ID),
		Name:            w.Name,
		Description:     w.Description,
		Status:          w.Status,
		OwnerID:         string(w.OwnerID),
		MaxParticipants: w.MaxParticipants,
		Metadata:        w.Metadata,
	}
}

// RoomPatch holds the room fields present in a room_updated frame.
type RoomPatch struct {
	Name            *string           `json:"name"`
	Description     *string           `json:"description"`
	Status          *roommodel.Status `json:"status"`
	OwnerID         *flexString       `json:"ownerId"`
	MaxParticipants *int              `json:"maxParticipants"`
	Metadata        map[string]any    `json:"metadata"`
}

// Apply returns room with the present fields overwritten.
func (p RoomPatch) Apply(room roommodel.Room) roommodel.Room {
	if p.Name != nil {
		room.Name = *p.Name
	}
	if p.Description != nil {
		room.Description = *p.Description
	}
	if p.Status != nil {
		room.Status = *p.Status
	}
	if p.OwnerID != nil {
		room.OwnerID = string(*p.OwnerID)
	}
	if p.MaxParticipants != nil {
		room.MaxParticipants = *p.MaxParticipants
	}
	if p.Metadata != nil {
		room.Metadata = p.Metadata
	}
	return room
}

type wireLocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Timestamp flexTime `json:"timestamp"`
}

func (w wireLocation) model() geomodel.Location {
	return geomodel.Location{
		Latitude:  w.Latitude,
		Longitude: w.Longitude,
		Accuracy:  w.Accuracy,
		Timestamp: time.Time(w.Timestamp),
	}
}

type wireParticipant struct {
	UserID      flexString    `json:"userId"`
	DisplayName string        `json:"displayName"`
	PhotoURL    string        `json:"photoURL"`
	Role        string        `json:"role"`
	JoinedAt    flexTime      `json:"joinedAt"`
	Timestamp   flexTime      `json:"timestamp"`
	Location    *wireLocation `json:"location"`
	IsOnline    *bool         `json:"isOnline"`
}

func (w wireParticipant) model() roommodel.Participant {
	p := roommodel.Participant{
		UserID:      string(w.UserID),
		DisplayName: w.DisplayName,
		PhotoURL:    w.PhotoURL,
		Role:        w.Role,
		JoinedAt:    time.Time(w.JoinedAt),
		IsOnline:    true,
	}
	if w.IsOnline != nil {
		p.IsOnline = *w.IsOnline
	}
	if w.Location != nil {
		loc := w.Location.model()
		p.Location = &loc
	}
	return p
}

type wireMessage struct {
	ID          flexString            `json:"id"`
	RoomID      flexString            `json:"roomId"`
	Type        roommodel.MessageType `json:"type"`
	Content     string                `json:"content"`
	SenderID    flexString            `json:"senderId"`
	SenderName  string                `json:"senderName"`
	UserID      flexString            `json:"userId"`
	DisplayName string                `json:"displayName"`
	Timestamp   flexTime              `json:"timestamp"`
}

func (w wireMessage) model() roommodel.Message {
	m := roommodel.Message{
		ID:         string(w.ID),
		RoomID:     string(w.RoomID),
		Type:       w.Type,
		Content:    w.Content,
		SenderID:   string(w.SenderID),
		SenderName: w.SenderName,
		Timestamp:  time.Time(w.Timestamp),
	}
	if m.SenderID == "" {
		m.SenderID = string(w.UserID)
	}
	if m.SenderName == "" {
		m.SenderName = w.DisplayName
	}
	if m.Type == "" {
		m.Type = roommodel.MessageText
	}
	return m
}

// Outbound payloads.

type roomRef struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	RoomID    string                `json:"roomId"`
	Content   string                `json:"content"`
	Type      roommodel.MessageType `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
}

type locationPayload struct {
	RoomID   string            `json:"roomId,omitempty"`
	Location geomodel.Location `json:"location"`
}

type pingPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// joinPayload flattens caller metadata next to roomId, which always wins.
func joinPayload(roomID string, metadata map[string]any) map[string]any {
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["roomId"] = roomID
	return payload
}
