package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	roommodel "github.com/zhouzirui/maps-app/client/internal/model/room"
)

// ErrInvalidRoom is returned before any request when a RoomInput breaks the room limits.
var ErrInvalidRoom = errors.New("invalid room")

// RoomAPI covers /api/rooms.
type RoomAPI struct {
	c *Client
}

// RoomFilter narrows List.
type RoomFilter struct {
	Status roommodel.Status
	Search string
	Page   int
	Limit  int
}

func (f RoomFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// RoomInput is the body of room creation and update.
type RoomInput struct {
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Status          roommodel.Status `json:"status,omitempty"`
	MaxParticipants int              `json:"maxParticipants,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// Validate checks the input against the room limits.
func (in RoomInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRoom)
	case utf8.RuneCountInString(name) > roommodel.MaxNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRoom, roommodel.MaxNameLength)
	case utf8.RuneCountInString(in.Description) > roommodel.MaxDescriptionLength:
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRoom, roommodel.MaxDescriptionLength)
	case in.MaxParticipants < 0 || in.MaxParticipants > roommodel.MaxParticipants:
		return fmt.Errorf("%w: max participants must be between 1 and %d", ErrInvalidRoom, roommodel.MaxParticipants)
	}
	return nil
}

type roomEnvelope struct {
	Room roommodel.Room `json:"room"`
}

type participantsEnvelope struct {
	Participants []roommodel.Participant `json:"participants"`
}

func (r *RoomAPI) List(ctx context.Context, filter RoomFilter) ([]roommodel.Room, error) {
	var resp struct {
		Rooms []roommodel.Room `json:"rooms"`
	}
	if err := r.c.do(ctx, http.MethodGet, "/api/rooms", filter.query(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (r *RoomAPI) Get(ctx context.Context, id string) (roommodel.Room, error) {
	var resp roomEnvelope
	if err := r.c.do(ctx, http.MethodGet, roomPath(id), nil, nil, &resp); err != nil {
		return roommodel.Room{}, err
	}
	return resp.Room, nil
}

func (r *RoomAPI) Create(ctx context.Context, in RoomInput) (roommodel.Room, error) {
	if err := in.Validate(); err != nil {
		return roommodel.Room{}, err
	}
	var resp roomEnvelope
	if err := r.c.do(ctx, http.MethodPost, "/api/rooms", nil, in, &resp); err != nil {
		return roommodel.Room{}, err
	}
	return resp.Room, nil
}

func (r *RoomAPI) Update(ctx context.Context, id string, in RoomInput) (roommodel.Room, error) {
	if err := in.Validate(); err != nil {
		return roommodel.Room{}, err
	}
	var resp roomEnvelope
	if err := r.c.do(ctx, http.MethodPut, roomPath(id), nil, in, &resp); err != nil {
		return roommodel.Room{}, err
	}
	return resp.Room, nil
}

func (r *RoomAPI) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodDelete, roomPath(id), nil, nil, nil)
}

// Join registers the caller as a participant through REST. Realtime
// membership is negotiated separately over the socket.
func (r *RoomAPI) Join(ctx context.Context, id string, metadata map[string]any) (roommodel.Room, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	var resp roomEnvelope
	if err := r.c.do(ctx, http.MethodPost, roomPath(id)+"/join", nil, metadata, &resp); err != nil {
		return roommodel.Room{}, err
	}
	return resp.Room, nil
}

func (r *RoomAPI) Leave(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodPost, roomPath(id)+"/leave", nil, nil, nil)
}

func (r *RoomAPI) Participants(ctx context.Context, id string) ([]roommodel.Participant, error) {
	var resp participantsEnvelope
	if err := r.c.do(ctx, http.MethodGet, roomPath(id)+"/participants", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

func roomPath(id string) string {
	return "/api/rooms/" + url.PathEscape(id)
}
