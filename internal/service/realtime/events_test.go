package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rt "github.com/zhouzirui/maps-app/client/internal/model/realtime"
	roommodel "github.com/zhouzirui/maps-app/client/internal/model/room"
)

func frame(event, data string) rt.Frame {
	f := rt.Frame{Event: event}
	if data != "" {
		f.Data = json.RawMessage(data)
	}
	return f
}

func TestDecodeJoinedRoom(t *testing.T) {
	ev, err := DecodeFrame(frame(rt.EventJoinedRoom, `{
		"room": {"id": 42, "name": "Centro", "status": "active", "metadata": {"zone": "norte"}},
		"participants": [
			{"userId": "a", "displayName": "Ana", "isOnline": false, "location": {"latitude": -34.6, "longitude": -58.4, "timestamp": 1700000000000}},
			{"userId": 7, "displayName": "Beto"}
		],
		"messages": [
			{"id": 1700000000000, "userId": "a", "displayName": "Ana", "content": "hola", "timestamp": "2024-05-01T10:00:00.5Z"}
		]
	}`))
	require.NoError(t, err)

	joined, ok := ev.(JoinedRoomEvent)
	require.True(t, ok)
	assert.Equal(t, "42", joined.Room.ID)
	assert.Equal(t, "norte", joined.Room.Metadata["zone"])

	require.Len(t, joined.Participants, 2)
	assert.False(t, joined.Participants[0].IsOnline)
	require.NotNil(t, joined.Participants[0].Location)
	assert.Equal(t, time.UnixMilli(1700000000000), joined.Participants[0].Location.Timestamp)
	assert.Equal(t, "7", joined.Participants[1].UserID)
	assert.True(t, joined.Participants[1].IsOnline)

	require.Len(t, joined.Messages, 1)
	msg := joined.Messages[0]
	assert.Equal(t, "1700000000000", msg.ID)
	assert.Equal(t, "a", msg.SenderID)
	assert.Equal(t, "Ana", msg.SenderName)
	assert.Equal(t, roommodel.MessageText, msg.Type)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 500_000_000, time.UTC), msg.Timestamp.UTC())
}

func TestDecodeSimpleEvents(t *testing.T) {
	cases := []struct {
		frame rt.Frame
		want  Event
	}{
		{frame(rt.EventConnect, ""), ConnectEvent{}},
		{frame(rt.EventPong, `{"timestamp": 1}`), PongEvent{}},
		{frame(rt.EventDisconnect, `{"reason":"transport close"}`), DisconnectEvent{Reason: rt.ReasonTransportClose}},
		{frame(rt.EventReconnectFailed, `{"attempts":6,"error":"refused"}`), ReconnectFailedEvent{Attempts: 6, Error: "refused"}},
		{frame(rt.EventLeftRoom, `{"roomId":"R1"}`), LeftRoomEvent{RoomID: "R1"}},
		{frame(rt.EventUserLeft, `{"userId":"u","displayName":"U"}`), UserLeftEvent{UserID: "u", DisplayName: "U"}},
		{frame(rt.EventRoomDeleted, `{"roomId":9}`), RoomDeletedEvent{RoomID: "9"}},
		{frame(rt.EventUserTyping, `{"userId":"u","displayName":"U","isTyping":true}`), UserTypingEvent{UserID: "u", DisplayName: "U", IsTyping: true}},
		{frame(rt.EventError, `"boom"`), ErrorEvent{Message: "boom"}},
		{frame(rt.EventError, `{"message":"room full"}`), ErrorEvent{Message: "room full"}},
		{frame(rt.EventError, `{"error":"denied"}`), ErrorEvent{Message: "denied"}},
	}

	for _, tc := range cases {
		got, err := DecodeFrame(tc.frame)
		require.NoError(t, err, tc.frame.Event)
		assert.Equal(t, tc.want, got, tc.frame.Event)
		assert.Equal(t, tc.frame.Event, got.Name())
	}
}

func TestDecodeRoomUpdatedPatch(t *testing.T) {
	ev, err := DecodeFrame(frame(rt.EventRoomUpdated, `{"room":{"id":"R1","name":"Nuevo","maxParticipants":20}}`))
	require.NoError(t, err)
	updated := ev.(RoomUpdatedEvent)
	assert.Equal(t, "R1", updated.RoomID)

	room := updated.Patch.Apply(roommodel.Room{ID: "R1", Name: "Viejo", Description: "keep", Status: roommodel.StatusActive})
	assert.Equal(t, "Nuevo", room.Name)
	assert.Equal(t, "keep", room.Description)
	assert.Equal(t, roommodel.StatusActive, room.Status)
	assert.Equal(t, 20, room.MaxParticipants)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeFrame(frame("mystery", `{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeFrame(frame(rt.EventNewMessage, `{"timestamp": "yesterday"}`))
	assert.Error(t, err)

	_, err = DecodeFrame(frame(rt.EventUserJoined, `[1,2]`))
	assert.Error(t, err)
}

func TestJoinPayloadKeepsRoomID(t *testing.T) {
	payload := joinPayload("R1", map[string]any{"roomId": "other", "role": "driver"})
	assert.Equal(t, map[string]any{"roomId": "R1", "role": "driver"}, payload)
	assert.Equal(t, map[string]any{"roomId": "R1"}, joinPayload("R1", nil))
}
