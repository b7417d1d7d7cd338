package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"huddle/cmd/internal/auth/session"
	v1 "huddle/contracts/realtime/v1"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

// WSGateway is the websocket entrypoint for huddle realtime.
//
// A request is authenticated from its session cookie before the upgrade; an
// unauthenticated request never becomes a connection. Accepted connections
// are registered with the Router and their join_room and send_message
// requests are routed to the Router and Pipeline.
type WSGateway struct {
	log      *slog.Logger
	cfg      GatewayConfig
	sessions SessionVerifier
	router   *Router
	pipeline *Pipeline
	obs      Observer

	// Derived for websocket.Accept origin checks: Accept allows same-host
	// origins, cross-origin needs OriginPatterns.
	originPatterns []string
}

// NewWSGateway wires a gateway. obs may be nil.
func NewWSGateway(log *slog.Logger, cfg GatewayConfig, sessions SessionVerifier, router *Router, pipeline *Pipeline, obs Observer) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	cfg = cfg.normalized()
	return &WSGateway{
		log:            log,
		cfg:            cfg,
		sessions:       sessions,
		router:         router,
		pipeline:       pipeline,
		obs:            obs,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// authenticate resolves the request's session before any upgrade.
func (g *WSGateway) authenticate(r *http.Request) (userID, tok string, status int) {
	tok, ok := session.TokenFromRequest(r, g.cfg.CookieName)
	if !ok {
		return "", "", http.StatusUnauthorized
	}
	userID, err := g.sessions.Verify(r.Context(), tok)
	switch {
	case err == nil && userID != "":
		return userID, tok, http.StatusOK
	case errors.Is(err, session.ErrUnavailable):
		g.log.Error("ws.auth.unavailable", "err", err, "remote", r.RemoteAddr)
		return "", "", http.StatusServiceUnavailable
	default:
		return "", "", http.StatusUnauthorized
	}
}

// HandleWS upgrades an authenticated request and runs the connection loops.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.obs.ConnRejected("origin")
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	userID, tok, status := g.authenticate(r)
	if status != http.StatusOK {
		if status == http.StatusUnauthorized {
			g.obs.ConnRejected("unauthenticated")
			g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		} else {
			g.obs.ConnRejected("unavailable")
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.obs.ConnRejected("subprotocol")
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	now := time.Now().UTC()
	connID, err := NewConnID(now)
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(connID, userID, tok, g.cfg.SendQueueSize)

	if err := g.router.Register(client); err != nil {
		g.obs.ConnRejected("closed")
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	g.obs.ConnOpened()
	g.log.Info("ws.connect", "conn_id", connID, "user_id", userID, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It never closes client.Send; the client leaves
	// the router before it is closed.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.router.Unregister(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()

			g.obs.ConnClosed()
			g.log.Info("ws.disconnect", "conn_id", connID, "user_id", userID, "reason", reason)
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Router.Close at server shutdown.
				shutdown(websocket.StatusGoingAway, "server shutting down")
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		data, err := readFrame(ctx, conn)

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now()) {
			// Written inline: the writer stops as soon as shutdown begins.
			if env, err := errorEnvelope("rate_limited", "too many events"); err == nil {
				_ = writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout)
			}
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.sendError(client, "bad_json", "invalid JSON")
			continue readLoop
		}
		if err := env.Validate(); err != nil {
			g.sendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeJoinRoom:
			g.onJoinRoom(ctx, client, env)
		case v1.TypeSendMessage:
			g.onSendMessage(ctx, client, env)
		default:
			g.sendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

// onJoinRoom never answers: non-members learn nothing about the chat.
func (g *WSGateway) onJoinRoom(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.JoinRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.sendError(client, "bad_payload", "invalid join_room payload")
		return
	}
	g.router.JoinRoom(ctx, client, strings.TrimSpace(p.ChatID))
}

// onSendMessage answers every request with exactly one ack.
func (g *WSGateway) onSendMessage(ctx context.Context, client *Client, env v1.Envelope) {
	var ack v1.AckPayload

	var p v1.SendMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.obs.Submit(submitInvalid)
		ack.Error = ackInvalidMessage
	} else if msg, err := g.pipeline.Submit(ctx, client, p); err != nil {
		ack.Error = ackErrorText(err)
	} else {
		payload := msg.Payload()
		ack.Success = true
		ack.Message = &payload
	}

	now := time.Now().UTC()
	out, err := v1.New(v1.TypeAck, NewEnvelopeID(now), ack, now)
	if err != nil {
		g.log.Error("ws.ack.encode", "conn_id", client.ConnID, "err", err)
		return
	}
	out.ReplyTo = env.ID

	if !client.offer(out) {
		g.obs.Dropped()
		g.log.Info("ws.ack.drop", "conn_id", client.ConnID, "reply_to", env.ID)
	}
}

func (g *WSGateway) sendError(client *Client, code, msg string) {
	env, err := errorEnvelope(code, msg)
	if err != nil {
		return
	}
	_ = client.offer(env)
}

func errorEnvelope(code, msg string) (v1.Envelope, error) {
	now := time.Now().UTC()
	return v1.New(v1.TypeError, NewEnvelopeID(now), v1.ErrorPayload{Code: code, Message: msg}, now)
}

// ---- frame IO ----

func readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, fmt.Errorf("unsupported message type: %v", mt)
	}
	return data, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		if a == "*" {
			return nil
		}
		// Full origin match first, then host only.
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins returns the sorted, distinct hosts of
// the allowlist, for websocket.Accept's filepath.Match host patterns.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
