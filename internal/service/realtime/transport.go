package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	rt "github.com/zhouzirui/maps-app/client/internal/model/realtime"
)

var (
	ErrSocketClosed = errors.New("socket is not connected")
	ErrSendBuffer   = errors.New("send buffer full")
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
	maxFrameSize   = 1 << 20
)

// Transport opens sockets to the realtime server.
type Transport interface {
	// Open starts connecting in the background and returns at once. handler
	// receives every frame, including the locally raised connect, disconnect
	// and reconnect_failed frames, from a single goroutine. Open must not call
	// handler before it returns.
	Open(token string, handler func(rt.Frame)) Socket
}

// Socket is one logical connection, kept alive across reconnects until Close.
type Socket interface {
	ID() string
	Connected() bool
	Emit(event string, data any) error
	Close()
}

// WebSocketConfig tunes the WebSocket transport.
type WebSocketConfig struct {
	URL               string
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// WebSocketTransport speaks JSON {event, data} frames over gorilla/websocket
// and reconnects with a bounded, fixed-delay policy.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewWebSocketTransport builds a transport for cfg.
func NewWebSocketTransport(cfg WebSocketConfig, logger *zap.Logger) *WebSocketTransport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketTransport{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout, Proxy: http.ProxyFromEnvironment},
		log:    logger.Named("transport"),
	}
}

func (t *WebSocketTransport) Open(token string, handler func(rt.Frame)) Socket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSocket{
		transport: t,
		token:     token,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

type wsSocket struct {
	transport *WebSocketTransport
	token     string
	handler   func(rt.Frame)
	ctx       context.Context
	cancel    context.CancelFunc
	send      chan []byte
	done      chan struct{}
	connected atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	id     string
	closed bool
}

func (s *wsSocket) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *wsSocket) Connected() bool {
	return s.connected.Load()
}

// Emit queues a frame for the write pump. It never blocks.
func (s *wsSocket) Emit(event string, data any) error {
	if !s.connected.Load() {
		return ErrSocketClosed
	}
	frame := rt.Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		frame.Data = raw
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendBuffer
	}
}

// Close stops reconnecting and closes the current connection with a normal
// closure. No frames are delivered afterwards.
func (s *wsSocket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	s.connected.Store(false)
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (s *wsSocket) deliver(event string, data any) {
	frame := rt.Frame{Event: event}
	if data != nil {
		frame.Data, _ = json.Marshal(data)
	}
	s.dispatch(frame)
}

func (s *wsSocket) dispatch(frame rt.Frame) {
	if s.ctx.Err() != nil {
		return
	}
	s.handler(frame)
}

func (s *wsSocket) run() {
	defer close(s.done)
	log := s.transport.log

	for {
		conn, attempts, err := s.dialWithRetry()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Error("giving up on realtime server", zap.Int("attempts", attempts), zap.Error(err))
			s.deliver(rt.EventReconnectFailed, rt.ReconnectFailedData{Attempts: attempts, Error: err.Error()})
			return
		}

		reason := s.serve(conn)
		if s.ctx.Err() != nil {
			return
		}
		log.Info("realtime connection lost", zap.String("reason", reason))
		s.deliver(rt.EventDisconnect, rt.DisconnectData{Reason: reason})
		if reason == rt.ReasonServerDisconnect {
			return
		}
	}
}

// dialWithRetry makes one attempt plus up to ReconnectAttempts retries spaced
// by ReconnectDelay. A rejected credential is not retried.
func (s *wsSocket) dialWithRetry() (*websocket.Conn, int, error) {
	cfg := s.transport.cfg
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ReconnectDelay), uint64(cfg.ReconnectAttempts)),
		s.ctx,
	)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	var (
		conn     *websocket.Conn
		attempts int
	)
	op := func() error {
		if err := s.ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		c, resp, err := s.transport.dialer.DialContext(s.ctx, cfg.URL, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(fmt.Errorf("handshake rejected: %s", resp.Status))
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.transport.log.Warn("realtime dial failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, attempts, err
	}
	return conn, attempts, nil
}

// serve runs one physical connection until it drops and returns the
// disconnect reason.
func (s *wsSocket) serve(conn *websocket.Conn) string {
	if !s.setConn(conn) {
		_ = conn.Close()
		return rt.ReasonTransportClose
	}
	conn.SetReadLimit(maxFrameSize)
	if n := s.discardPending(); n > 0 {
		s.transport.log.Debug("discarded frames queued for the previous connection", zap.Int("frames", n))
	}

	s.connected.Store(true)
	s.transport.log.Info("realtime connected", zap.String("socket_id", s.ID()))
	s.deliver(rt.EventConnect, nil)

	stop := make(chan struct{})
	pumpDone := make(chan struct{})
	go s.writePump(conn, stop, pumpDone)

	reason := s.readLoop(conn)

	s.connected.Store(false)
	close(stop)
	<-pumpDone
	_ = conn.Close()
	s.setConn(nil)
	return reason
}

// discardPending empties the send queue. Frames emitted for a connection that
// dropped are not replayed on the next one.
func (s *wsSocket) discardPending() int {
	n := 0
	for {
		select {
		case <-s.send:
			n++
		default:
			return n
		}
	}
}

func (s *wsSocket) setConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn == nil {
		s.conn, s.id = nil, ""
		return true
	}
	if s.closed {
		return false
	}
	s.conn, s.id = conn, uuid.NewString()
	return true
}

func (s *wsSocket) readLoop(conn *websocket.Conn) string {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return disconnectReason(err)
		}

		var frame rt.Frame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Event == "" {
			s.transport.log.Warn("dropping malformed frame", zap.ByteString("payload", payload))
			continue
		}
		switch frame.Event {
		case rt.EventConnect, rt.EventDisconnect, rt.EventReconnectFailed:
			// reserved for locally raised frames
			continue
		}
		s.dispatch(frame)
	}
}

func (s *wsSocket) writePump(conn *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case payload := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.transport.log.Warn("realtime write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseNormalClosure {
			return rt.ReasonServerDisconnect
		}
		return rt.ReasonTransportClose
	}
	return rt.ReasonTransportError
}
