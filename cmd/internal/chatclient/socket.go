package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	v1 "huddle/contracts/realtime/v1"
)

var (
	ErrClosed             = errors.New("chatclient: socket closed")
	ErrDisconnected       = errors.New("chatclient: connection lost before ack")
	ErrReconnectExhausted = errors.New("chatclient: reconnect attempts exhausted")
	ErrHandshakeRejected  = errors.New("chatclient: handshake rejected")
)

// AckError is a send_message the server refused, e.g. "Not a chat participant".
type AckError struct {
	Reason string
}

func (e *AckError) Error() string { return "chatclient: send rejected: " + e.Reason }

const (
	defaultAckTimeout   = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultEventBuffer  = 128
	maxReadBytes        = 1 << 20
)

type SocketConfig struct {
	// URL is the gateway endpoint, e.g. "ws://127.0.0.1:8080/ws".
	URL    string
	Origin string

	SessionToken string
	CookieName   string

	// Retry bounds both the first dial and every reconnect.
	Retry RetryPolicy

	AckTimeout  time.Duration
	EventBuffer int
	HTTPClient  *http.Client
}

type ackResult struct {
	ack v1.AckPayload
	err error
}

// Socket is a reconnecting realtime client. Rooms passed to Join are tracked
// and joined again after every reconnect. SendMessage is never retried: a
// send in flight when the connection drops fails with ErrDisconnected.
type Socket struct {
	cfg    SocketConfig
	log    *slog.Logger
	events chan v1.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	finish sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	rooms   map[string]struct{}
	pending map[string]chan ackResult
	started bool
	running bool
	closed  bool
	err     error
}

func NewSocket(log *slog.Logger, cfg SocketConfig) *Socket {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "sessionId"
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		cfg:     cfg,
		log:     log,
		events:  make(chan v1.Envelope, cfg.EventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		rooms:   make(map[string]struct{}),
		pending: make(map[string]chan ackResult),
	}
}

// Events yields new_message, new_chat and error envelopes. It is closed when
// the socket is closed or gives up reconnecting; see Err.
func (s *Socket) Events() <-chan v1.Envelope { return s.events }

// Done is closed once the socket has stopped for good.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Err explains why the socket stopped, nil after a plain Close.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Connect dials under the retry policy and starts the read loop.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.started:
		s.mu.Unlock()
		return errors.New("chatclient: already connected")
	}
	s.started = true
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		return ErrClosed
	}
	s.conn = conn
	s.running = true
	rooms := s.roomsLocked()
	s.mu.Unlock()

	s.rejoin(conn, rooms)
	go s.run(conn)
	return nil
}

func (s *Socket) roomsLocked() []string {
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Socket) rejoin(conn *websocket.Conn, rooms []string) {
	for _, chatID := range rooms {
		if err := s.write(s.ctx, conn, v1.TypeJoinRoom, uuid.NewString(), v1.JoinRoomPayload{ChatID: chatID}); err != nil {
			s.log.Info("chatclient.rejoin.fail", "chat_id", chatID, "err", err)
		}
	}
}

// Join subscribes to chatID now if connected, and again on every (re)connect.
func (s *Socket) Join(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.rooms[chatID] = struct{}{}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.write(ctx, conn, v1.TypeJoinRoom, uuid.NewString(), v1.JoinRoomPayload{ChatID: chatID})
}

// SendMessage submits content and waits for its ack.
func (s *Socket) SendMessage(ctx context.Context, chatID, content string) (v1.MessagePayload, error) {
	id := uuid.NewString()
	ch := make(chan ackResult, 1)

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return v1.MessagePayload{}, ErrClosed
	case s.conn == nil:
		s.mu.Unlock()
		return v1.MessagePayload{}, ErrDisconnected
	}
	conn := s.conn
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.write(ctx, conn, v1.TypeSendMessage, id, v1.SendMessagePayload{ChatID: chatID, Content: content}); err != nil {
		s.dropPending(id)
		return v1.MessagePayload{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	wait, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
	defer cancel()

	select {
	case <-wait.Done():
		s.dropPending(id)
		return v1.MessagePayload{}, wait.Err()
	case res := <-ch:
		if res.err != nil {
			return v1.MessagePayload{}, res.err
		}
		if res.ack.Error != "" {
			return v1.MessagePayload{}, &AckError{Reason: res.ack.Error}
		}
		if !res.ack.Success || res.ack.Message == nil {
			return v1.MessagePayload{}, errors.New("chatclient: malformed ack")
		}
		return *res.ack.Message, nil
	}
}

// Close stops the socket and fails pending sends with ErrClosed.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	running := s.running
	s.failPendingLocked(ErrClosed)
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if running {
		<-s.done
	} else {
		s.stop()
	}
	return nil
}

func (s *Socket) stop() {
	s.finish.Do(func() {
		close(s.events)
		close(s.done)
	})
}

func (s *Socket) run(conn *websocket.Conn) {
	defer s.stop()

	for {
		err := s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.failPendingLocked(ErrDisconnected)
		closed := s.closed
		s.mu.Unlock()
		if closed || s.ctx.Err() != nil {
			return
		}
		s.log.Info("chatclient.disconnected", "err", err)

		next, err := s.dial(s.ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
			}
			s.mu.Unlock()
			s.log.Warn("chatclient.reconnect.fail", "err", err)
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = next.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		s.conn = next
		rooms := s.roomsLocked()
		s.mu.Unlock()

		s.rejoin(next, rooms)
		s.log.Info("chatclient.reconnected", "rooms", len(rooms))
		conn = next
	}
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	for {
		_, b, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			s.log.Info("chatclient.bad_frame", "err", err)
			continue
		}

		if env.Type == v1.TypeAck {
			var ack v1.AckPayload
			if err := json.Unmarshal(env.Payload, &ack); err != nil {
				ack = v1.AckPayload{Error: "malformed ack"}
			}
			s.resolve(env.ReplyTo, ackResult{ack: ack})
			continue
		}

		select {
		case s.events <- env:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

func (s *Socket) resolve(id string, res ackResult) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		ch <- res
	}
}

func (s *Socket) dropPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Socket) failPendingLocked(err error) {
	for id, ch := range s.pending {
		ch <- ackResult{err: err}
		delete(s.pending, id)
	}
}

func (s *Socket) write(ctx context.Context, conn *websocket.Conn, typ, id string, payload any) error {
	env, err := v1.New(typ, id, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, b)
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	h := http.Header{}
	if s.cfg.Origin != "" {
		h.Set("Origin", s.cfg.Origin)
	}
	if s.cfg.SessionToken != "" {
		h.Set("Cookie", s.cfg.CookieName+"="+url.PathEscape(s.cfg.SessionToken))
	}

	var conn *websocket.Conn
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		c, res, err := websocket.Dial(dctx, s.cfg.URL, &websocket.DialOptions{
			HTTPClient:   s.cfg.HTTPClient,
			HTTPHeader:   h,
			Subprotocols: []string{v1.Subprotocol},
		})
		if err != nil {
			if res != nil && res.Body != nil {
				_ = res.Body.Close()
			}
			if res != nil && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
				return Permanent(fmt.Errorf("%w: http %d", ErrHandshakeRejected, res.StatusCode))
			}
			return err
		}
		if c.Subprotocol() != v1.Subprotocol {
			_ = c.Close(websocket.StatusProtocolError, "subprotocol required")
			return Permanent(fmt.Errorf("%w: subprotocol %q", ErrHandshakeRejected, c.Subprotocol()))
		}
		c.SetReadLimit(maxReadBytes)
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// LiveMessage decodes a new_message envelope.
func LiveMessage(env v1.Envelope) (v1.MessagePayload, bool) {
	if env.Type != v1.TypeNewMessage {
		return v1.MessagePayload{}, false
	}
	var m v1.MessagePayload
	if err := json.Unmarshal(env.Payload, &m); err != nil || m.ID == "" {
		return v1.MessagePayload{}, false
	}
	return m, true
}

// LiveChat decodes a new_chat envelope.
func LiveChat(env v1.Envelope) (v1.ChatPayload, bool) {
	if env.Type != v1.TypeNewChat {
		return v1.ChatPayload{}, false
	}
	var c v1.ChatPayload
	if err := json.Unmarshal(env.Payload, &c); err != nil || c.ID == "" {
		return v1.ChatPayload{}, false
	}
	return c, true
}
