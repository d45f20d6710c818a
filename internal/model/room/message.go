package room

import "time"

// MessageType distinguishes how a message body is rendered.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageSystem   MessageType = "system"
	MessageLocation MessageType = "location"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageSystem, MessageLocation, MessageImage, MessageFile:
		return true
	}
	return false
}

// Message is one entry of the room message log.
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId,omitempty"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	SenderID   string      `json:"senderId,omitempty"`
	SenderName string      `json:"senderName,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Read       bool        `json:"read"`
}
