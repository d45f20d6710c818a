package realtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
	rt "github.com/zhouzirui/maps-app/client/internal/model/realtime"
	roommodel "github.com/zhouzirui/maps-app/client/internal/model/room"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

// Precondition failures. Operations that return them did nothing.
var (
	ErrNoSession      = errors.New("no authenticated session")
	ErrNotConnected   = errors.New("not connected to server")
	ErrNotInRoom      = errors.New("not in a room")
	ErrInvalidMessage = errors.New("invalid message")
	ErrMissingRoomID  = errors.New("room id required")
)

// DefaultHeartbeatInterval is the ping cadence while connected.
const DefaultHeartbeatInterval = 15 * time.Second

// State of the engine's connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// NoticeLevel grades a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message meant for the user.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// SessionSource supplies the credential used at handshake time.
type SessionSource interface {
	CurrentSession() (authmodel.Session, bool)
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Clock               utils.Clock
	Logger              *zap.Logger
	HeartbeatInterval   time.Duration
	TypingSweepInterval time.Duration
	TypingTTL           time.Duration
	// OnNotice and OnEvent run after the engine lock is released, in order.
	OnNotice func(Notice)
	OnEvent  func(Event)
}

// ConnectionInfo describes the live socket.
type ConnectionInfo struct {
	State    State
	SocketID string
	LastPong time.Time
}

// Engine keeps one client's realtime connection and the state of its current
// room: participants, message log and typing indicators. One mutex
// serialises user calls, inbound frames and timer ticks.
type Engine struct {
	transport Transport
	sessions  SessionSource
	clock     utils.Clock
	log       *zap.Logger
	opts      Options

	mu     sync.Mutex
	gen    uint64
	state  State
	socket Socket
	userID string

	room         *roommodel.Room
	participants []roommodel.Participant
	messages     []roommodel.Message
	typing       map[string]roommodel.TypingIndicator

	heartbeatPaused bool
	heartbeatTimer  uint64
	stopHeartbeat   func()
	stopSweep       func()
	lastPong        time.Time
	seq             uint64
}

// NewEngine builds a disconnected Engine.
func NewEngine(transport Transport, sessions SessionSource, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.TypingSweepInterval <= 0 {
		opts.TypingSweepInterval = roommodel.DefaultTypingSweepPeriod
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = roommodel.TypingTTL
	}
	return &Engine{
		transport: transport,
		sessions:  sessions,
		clock:     opts.Clock,
		log:       opts.Logger.Named("realtime"),
		opts:      opts,
		typing:    make(map[string]roommodel.TypingIndicator),
	}
}

// effects collects what must happen once the lock is released.
type effects struct {
	notices []Notice
	events  []Event
	closing []Socket
}

func (fx *effects) notify(level NoticeLevel, format string, args ...any) {
	fx.notices = append(fx.notices, Notice{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (e *Engine) do(fn func(fx *effects)) {
	var fx effects
	e.mu.Lock()
	fn(&fx)
	e.mu.Unlock()

	for _, s := range fx.closing {
		s.Close()
	}
	if e.opts.OnNotice != nil {
		for _, n := range fx.notices {
			e.opts.OnNotice(n)
		}
	}
	if e.opts.OnEvent != nil {
		for _, ev := range fx.events {
			e.opts.OnEvent(ev)
		}
	}
}

// Connect opens the connection with the current session's credential. It is
// a no-op returning ErrNoSession without a session, and nil when a connection
// is already open or being re-established.
func (e *Engine) Connect() error {
	var err error
	e.do(func(fx *effects) {
		if e.state != StateDisconnected || e.socket != nil {
			return
		}
		session, ok := e.sessions.CurrentSession()
		if !ok || !session.Valid() {
			e.log.Warn("cannot connect without an authenticated session")
			err = ErrNoSession
			return
		}

		e.gen++
		gen := e.gen
		e.state = StateConnecting
		e.userID = session.User.ID
		e.socket = e.transport.Open(session.Token, func(f rt.Frame) { e.handleFrame(gen, f) })
		e.log.Info("connecting", zap.String("uid", e.userID))
	})
	return err
}

// Disconnect closes the connection and forgets the room. It is idempotent and
// frames from the closed socket are ignored afterwards.
func (e *Engine) Disconnect() {
	e.do(func(fx *effects) {
		e.gen++
		e.dropSocketLocked(fx)
		if e.state != StateDisconnected {
			e.log.Info("disconnected by client")
		}
		e.state = StateDisconnected
		e.stopTimersLocked()
		e.clearRoomLocked()
	})
}

func (e *Engine) handleFrame(gen uint64, f rt.Frame) {
	ev, err := DecodeFrame(f)
	if err != nil {
		e.log.Warn("dropping frame", zap.String("event", f.Event), zap.Error(err))
		return
	}
	e.do(func(fx *effects) {
		if gen != e.gen {
			e.log.Debug("ignoring frame from stale connection", zap.String("event", f.Event))
			return
		}
		e.applyLocked(ev, fx)
		fx.events = append(fx.events, ev)
	})
}

func (e *Engine) applyLocked(ev Event, fx *effects) {
	switch ev := ev.(type) {
	case ConnectEvent:
		e.state = StateConnected
		if !e.heartbeatPaused {
			e.startHeartbeatLocked()
		}
		e.startSweepLocked()
		if e.socket != nil {
			e.log.Info("connected", zap.String("socket_id", e.socket.ID()))
		}
		fx.notify(NoticeSuccess, "Connected to server")

	case DisconnectEvent:
		e.state = StateDisconnected
		e.stopTimersLocked()
		e.clearRoomLocked()
		e.log.Info("connection lost", zap.String("reason", ev.Reason))
		if ev.Reason == rt.ReasonServerDisconnect {
			// the server ended the session; the transport will not retry
			e.dropSocketLocked(fx)
			fx.notify(NoticeError, "Disconnected from server")
		} else {
			e.state = StateConnecting
			fx.notify(NoticeWarning, "Connection lost, reconnecting")
		}

	case ReconnectFailedEvent:
		e.state = StateDisconnected
		e.stopTimersLocked()
		e.clearRoomLocked()
		e.dropSocketLocked(fx)
		e.log.Error("reconnection failed", zap.Int("attempts", ev.Attempts), zap.String("error", ev.Error))
		fx.notify(NoticeError, "Could not connect to server")

	case ConnectedEvent:
		e.log.Info("session accepted by server", zap.String("uid", ev.UserID))

	case ErrorEvent:
		e.log.Warn("server reported an error", zap.String("message", ev.Message))
		fx.notify(NoticeError, "Connection error: %s", ev.Message)

	case JoinedRoomEvent:
		room := ev.Room
		e.room = &room
		e.participants = nil
		for _, p := range ev.Participants {
			e.upsertParticipantLocked(p)
		}
		e.messages = nil
		for _, m := range ev.Messages {
			e.appendMessageLocked(m)
		}
		clear(e.typing)
		e.log.Info("joined room", zap.String("room_id", room.ID), zap.Int("participants", len(e.participants)))
		fx.notify(NoticeSuccess, "Joined room %q", room.Name)

	case LeftRoomEvent:
		if e.room == nil {
			return
		}
		e.log.Info("left room", zap.String("room_id", e.room.ID))
		e.clearRoomLocked()
		fx.notify(NoticeInfo, "Left the room")

	case UserJoinedEvent:
		if e.room == nil {
			return
		}
		if e.indexOfParticipantLocked(ev.Participant.UserID) < 0 {
			e.participants = append(e.participants, ev.Participant)
		}
		e.appendSystemLocked(fmt.Sprintf("%s joined the room", ev.Participant.DisplayName))

	case UserLeftEvent:
		if e.room == nil {
			return
		}
		if i := e.indexOfParticipantLocked(ev.UserID); i >= 0 {
			e.participants = append(e.participants[:i], e.participants[i+1:]...)
		}
		delete(e.typing, ev.UserID)
		e.appendSystemLocked(fmt.Sprintf("%s left the room", ev.DisplayName))

	case RoomUpdatedEvent:
		if e.room == nil || e.room.ID != ev.RoomID {
			return
		}
		updated := ev.Patch.Apply(*e.room)
		e.room = &updated

	case RoomDeletedEvent:
		if e.room == nil || e.room.ID != ev.RoomID {
			return
		}
		e.clearRoomLocked()
		fx.notify(NoticeWarning, "The room was deleted")

	case NewMessageEvent:
		e.appendMessageLocked(ev.Message)

	case UserTypingEvent:
		if ev.UserID == "" || ev.UserID == e.userID {
			return
		}
		if ev.IsTyping {
			e.typing[ev.UserID] = roommodel.TypingIndicator{
				UserID:      ev.UserID,
				DisplayName: ev.DisplayName,
				Timestamp:   e.clock.Now(),
			}
		} else {
			delete(e.typing, ev.UserID)
		}

	case LocationUpdateEvent:
		if i := e.indexOfParticipantLocked(ev.UserID); i >= 0 {
			loc := ev.Location
			e.participants[i].Location = &loc
		}

	case PongEvent:
		e.lastPong = e.clock.Now()
	}
}

// JoinRoom asks the server to join roomID. The room state is replaced when
// the server confirms with joined_room.
func (e *Engine) JoinRoom(roomID string, metadata map[string]any) error {
	if roomID == "" {
		return ErrMissingRoomID
	}
	var err error
	e.do(func(fx *effects) {
		if err = e.requireConnectedLocked(fx); err != nil {
			return
		}
		err = e.emitLocked(fx, rt.EventJoinRoom, joinPayload(roomID, metadata))
	})
	return err
}

// LeaveRoom asks the server to leave the current room.
func (e *Engine) LeaveRoom() error {
	var err error
	e.do(func(fx *effects) {
		if err = e.requireRoomLocked(fx); err != nil {
			return
		}
		err = e.emitLocked(fx, rt.EventLeaveRoom, roomRef{RoomID: e.room.ID})
	})
	return err
}

// SendMessage emits a message to the current room. Nothing is appended
// locally; the server's new_message echo is the only copy.
func (e *Engine) SendMessage(content string, typ roommodel.MessageType) error {
	if typ == "" {
		typ = roommodel.MessageText
	}
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, typ)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(content); n > roommodel.MaxMessageLength {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidMessage, n, roommodel.MaxMessageLength)
	}

	var err error
	e.do(func(fx *effects) {
		if err = e.requireRoomLocked(fx); err != nil {
			return
		}
		err = e.emitLocked(fx, rt.EventSendMessage, sendMessagePayload{
			RoomID:    e.room.ID,
			Content:   content,
			Type:      typ,
			Timestamp: e.clock.Now(),
		})
	})
	return err
}

// SetTyping tells the room whether the local user is composing. No local
// indicator is kept for the local user.
func (e *Engine) SetTyping(typing bool) error {
	var err error
	e.do(func(fx *effects) {
		if e.state != StateConnected {
			err = ErrNotConnected
			return
		}
		if e.room == nil {
			err = ErrNotInRoom
			return
		}
		event := rt.EventTypingStop
		if typing {
			event = rt.EventTypingStart
		}
		err = e.emitLocked(fx, event, roomRef{RoomID: e.room.ID})
	})
	return err
}

// UpdateLocation shares the local position, tagged with the current room if any.
func (e *Engine) UpdateLocation(loc geomodel.Location) error {
	var err error
	e.do(func(fx *effects) {
		if e.state != StateConnected {
			err = ErrNotConnected
			return
		}
		payload := locationPayload{Location: loc}
		payload.Location.Timestamp = e.clock.Now()
		if e.room != nil {
			payload.RoomID = e.room.ID
		}
		err = e.emitLocked(fx, rt.EventUpdateLoc, payload)
	})
	return err
}

// Ping sends one heartbeat right away.
func (e *Engine) Ping() error {
	var err error
	e.do(func(fx *effects) {
		if e.state != StateConnected {
			err = ErrNotConnected
			return
		}
		err = e.emitLocked(fx, rt.EventPing, pingPayload{Timestamp: e.clock.Now()})
	})
	return err
}

// PauseHeartbeat stops pinging without closing the connection.
func (e *Engine) PauseHeartbeat() {
	e.do(func(*effects) {
		e.heartbeatPaused = true
		e.stopHeartbeatLocked()
	})
}

// ResumeHeartbeat restarts pinging now if connected, otherwise on the next connect.
func (e *Engine) ResumeHeartbeat() {
	e.do(func(*effects) {
		e.heartbeatPaused = false
		if e.state == StateConnected {
			e.startHeartbeatLocked()
		}
	})
}

// MarkAllRead flags every buffered message as read.
func (e *Engine) MarkAllRead() {
	e.do(func(*effects) {
		for i := range e.messages {
			e.messages[i].Read = true
		}
	})
}

// ClearMessages empties the message log.
func (e *Engine) ClearMessages() {
	e.do(func(*effects) { e.messages = nil })
}

// State returns the connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Connected reports whether the server acknowledged the connection.
func (e *Engine) Connected() bool {
	return e.State() == StateConnected
}

// CurrentRoom returns the joined room, or false outside a room.
func (e *Engine) CurrentRoom() (roommodel.Room, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return roommodel.Room{}, false
	}
	return *e.room, true
}

// InRoom reports whether a room is joined.
func (e *Engine) InRoom() bool {
	_, ok := e.CurrentRoom()
	return ok
}

// Participants returns a copy of the current room's members.
func (e *Engine) Participants() []roommodel.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]roommodel.Participant, len(e.participants))
	copy(out, e.participants)
	return out
}

// ParticipantCount returns the number of members in the current room.
func (e *Engine) ParticipantCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.participants)
}

// Messages returns a copy of the message log, oldest first.
func (e *Engine) Messages() []roommodel.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]roommodel.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// UnreadCount counts buffered messages not yet marked read.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.messages {
		if !m.Read {
			n++
		}
	}
	return n
}

// TypingUsers lists the remote users currently typing. Expired entries are
// left out even if the sweep has not removed them yet.
func (e *Engine) TypingUsers() []roommodel.TypingIndicator {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	out := make([]roommodel.TypingIndicator, 0, len(e.typing))
	for _, t := range e.typing {
		if now.Sub(t.Timestamp) < e.opts.TypingTTL {
			out = append(out, t)
		}
	}
	return out
}

// LastPong returns when the last pong arrived, zero if none has.
func (e *Engine) LastPong() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPong
}

// ConnectionInfo reports the socket, or false when none is open.
func (e *Engine) ConnectionInfo() (ConnectionInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.socket == nil {
		return ConnectionInfo{}, false
	}
	return ConnectionInfo{State: e.state, SocketID: e.socket.ID(), LastPong: e.lastPong}, true
}

func (e *Engine) requireConnectedLocked(fx *effects) error {
	if e.state != StateConnected {
		fx.notify(NoticeError, "Not connected to server")
		return ErrNotConnected
	}
	return nil
}

func (e *Engine) requireRoomLocked(fx *effects) error {
	if err := e.requireConnectedLocked(fx); err != nil {
		return err
	}
	if e.room == nil {
		fx.notify(NoticeError, "You are not in a room")
		return ErrNotInRoom
	}
	return nil
}

func (e *Engine) emitLocked(fx *effects, event string, data any) error {
	if err := e.socket.Emit(event, data); err != nil {
		e.log.Warn("emit failed", zap.String("event", event), zap.Error(err))
		fx.notify(NoticeError, "Could not reach the server")
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (e *Engine) indexOfParticipantLocked(userID string) int {
	for i, p := range e.participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (e *Engine) upsertParticipantLocked(p roommodel.Participant) {
	if i := e.indexOfParticipantLocked(p.UserID); i >= 0 {
		e.participants[i] = p
		return
	}
	e.participants = append(e.participants, p)
}

// appendMessageLocked stamps, appends and trims the log to the newest MaxMessages.
func (e *Engine) appendMessageLocked(m roommodel.Message) {
	now := e.clock.Now()
	if m.ID == "" {
		e.seq++
		m.ID = fmt.Sprintf("%d-%d", now.UnixMilli(), e.seq)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if m.RoomID == "" && e.room != nil {
		m.RoomID = e.room.ID
	}
	m.Read = false

	e.messages = append(e.messages, m)
	if over := len(e.messages) - roommodel.MaxMessages; over > 0 {
		e.messages = append([]roommodel.Message(nil), e.messages[over:]...)
	}
}

func (e *Engine) appendSystemLocked(content string) {
	e.appendMessageLocked(roommodel.Message{Type: roommodel.MessageSystem, Content: content})
}

func (e *Engine) dropSocketLocked(fx *effects) {
	if e.socket != nil {
		fx.closing = append(fx.closing, e.socket)
		e.socket = nil
	}
}

func (e *Engine) clearRoomLocked() {
	e.room = nil
	e.participants = nil
	e.messages = nil
	clear(e.typing)
}

func (e *Engine) startHeartbeatLocked() {
	if e.stopHeartbeat != nil {
		return
	}
	e.heartbeatTimer++
	timer := e.heartbeatTimer
	e.stopHeartbeat = e.clock.Every(e.opts.HeartbeatInterval, func() { e.heartbeatTick(timer) })
}

func (e *Engine) stopHeartbeatLocked() {
	if e.stopHeartbeat != nil {
		e.stopHeartbeat()
		e.stopHeartbeat = nil
	}
}

func (e *Engine) heartbeatTick(timer uint64) {
	e.do(func(fx *effects) {
		if timer != e.heartbeatTimer || e.stopHeartbeat == nil || e.state != StateConnected || e.heartbeatPaused {
			return
		}
		if err := e.socket.Emit(rt.EventPing, pingPayload{Timestamp: e.clock.Now()}); err != nil {
			e.log.Debug("heartbeat skipped", zap.Error(err))
		}
	})
}

func (e *Engine) startSweepLocked() {
	if e.stopSweep != nil {
		return
	}
	e.stopSweep = e.clock.Every(e.opts.TypingSweepInterval, e.sweepTyping)
}

func (e *Engine) sweepTyping() {
	e.do(func(*effects) {
		now := e.clock.Now()
		for id, t := range e.typing {
			if now.Sub(t.Timestamp) >= e.opts.TypingTTL {
				delete(e.typing, id)
			}
		}
	})
}

func (e *Engine) stopTimersLocked() {
	e.stopHeartbeatLocked()
	if e.stopSweep != nil {
		e.stopSweep()
		e.stopSweep = nil
	}
}
