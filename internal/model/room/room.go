package room

import (
	"time"

	"github.com/zhouzirui/maps-app/client/internal/model/geo"
)

// Status of a room as reported by the backend.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusFull     Status = "full"
	StatusPrivate  Status = "private"
)

// Limits shared by the REST and realtime layers.
const (
	MaxMessages              = 100
	MaxMessageLength         = 500
	MaxNameLength            = 50
	MaxDescriptionLength     = 200
	MaxParticipants          = 50
	TypingTTL                = 5 * time.Second
	DefaultTypingSweepPeriod = time.Second
)

// Room is a server-defined group for shared messaging and location.
type Room struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Status          Status         `json:"status,omitempty"`
	OwnerID         string         `json:"ownerId,omitempty"`
	MaxParticipants int            `json:"maxParticipants,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Participant is a member of the current room, keyed by UserID.
type Participant struct {
	UserID      string        `json:"userId"`
	DisplayName string        `json:"displayName"`
	PhotoURL    string        `json:"photoURL,omitempty"`
	Role        string        `json:"role,omitempty"`
	JoinedAt    time.Time     `json:"joinedAt,omitempty"`
	Location    *geo.Location `json:"location,omitempty"`
	IsOnline    bool          `json:"isOnline"`
}

// TypingIndicator marks a remote user as composing a message.
type TypingIndicator struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}
