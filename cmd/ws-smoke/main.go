// Command ws-smoke is a CI-friendly end-to-end check against a running huddle
// server.
//
// It validates:
//   - register + login for two fresh accounts
//   - handshake with the session cookie and subprotocol
//   - chat creation and new_chat delivery to the other participant
//   - send_message -> ack and new_message fanout
//   - history fetch through the cursor endpoint
//   - membership gating for a chat the sender is not part of
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/cmd/internal/chatclient"
	v1 "huddle/contracts/realtime/v1"
)

type account struct {
	name  string
	id    string
	token string
}

type smoke struct {
	base       string
	wsURL      string
	origin     string
	cookieName string
	timeout    time.Duration
	verbose    bool
	http       *http.Client
	log        *slog.Logger
}

func main() {
	var (
		baseURL    = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL")
		wsURL      = flag.String("url", "", "WebSocket URL (default derived from -base)")
		origin     = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		cookieName = flag.String("cookie", "sessionId", "Session cookie name")
		text       = flag.String("text", "hello huddle 👋", "Message text to send")
		settle     = flag.Duration("settle", 300*time.Millisecond, "Pause after join_room, which has no ack")
		timeout    = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if *wsURL == "" {
		*wsURL = deriveWSURL(*baseURL)
	}
	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	s := &smoke{
		base:       strings.TrimRight(*baseURL, "/"),
		wsURL:      *wsURL,
		origin:     *origin,
		cookieName: *cookieName,
		timeout:    *timeout,
		verbose:    *verbose,
		http:       &http.Client{Timeout: *timeout},
		log:        slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
	root := context.Background()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	a := s.mustSignUp(root, "a"+suffix)
	b := s.mustSignUp(root, "b"+suffix)
	s.logf("accounts: A=%s B=%s", a.id, b.id)

	sb := s.mustConnect(root, b)
	defer func() { _ = sb.Close() }()

	chat := s.mustCreateChat(root, a, b.id)
	got := mustNextEvent(root, sb, v1.TypeNewChat, *timeout)
	if c, ok := chatclient.LiveChat(got); !ok || c.ID != chat.ID {
		fatalf("new_chat mismatch: got=%+v want id=%s", got, chat.ID)
	}

	sa := s.mustConnect(root, a)
	defer func() { _ = sa.Close() }()

	mustStep(root, *timeout, "join B", func(ctx context.Context) error { return sb.Join(ctx, chat.ID) })
	mustStep(root, *timeout, "join A", func(ctx context.Context) error { return sa.Join(ctx, chat.ID) })
	time.Sleep(*settle)

	var sent v1.MessagePayload
	mustStep(root, *timeout, "send", func(ctx context.Context) error {
		m, err := sa.SendMessage(ctx, chat.ID, "  "+*text+"  ")
		sent = m
		return err
	})
	if sent.Content != *text || sent.UserID != a.id || sent.ChatID != chat.ID {
		fatalf("ack message mismatch: %+v", sent)
	}

	live, ok := chatclient.LiveMessage(mustNextEvent(root, sb, v1.TypeNewMessage, *timeout))
	if !ok || live.ID != sent.ID || live.Content != sent.Content {
		fatalf("new_message mismatch: got=%+v want id=%s", live, sent.ID)
	}

	fetch, err := chatclient.NewHTTPFetcher(s.base,
		chatclient.WithSessionToken(b.token),
		chatclient.WithCookieName(s.cookieName),
		chatclient.WithHTTPClient(s.http),
	)
	if err != nil {
		fatalf("history client: %v", err)
	}
	tl := chatclient.NewTimeline(fetch, 50)
	mustStep(root, *timeout, "history", func(ctx context.Context) error { return tl.Mount(ctx, chat.ID) })
	if msgs := tl.Messages(); len(msgs) != 1 || msgs[0].ID != sent.ID {
		fatalf("history mismatch: %+v", msgs)
	}

	ctx, cancel := context.WithTimeout(root, *timeout)
	_, err = sa.SendMessage(ctx, uuid.NewString(), *text)
	cancel()
	var ae *chatclient.AckError
	if !errors.As(err, &ae) {
		fatalf("send to foreign chat: want rejected ack, got %v", err)
	}

	fmt.Printf("OK: A=%s B=%s chat_id=%s message_id=%s\n", a.id, b.id, chat.ID, sent.ID)
}

func (s *smoke) mustSignUp(parent context.Context, username string) account {
	email := username + "@smoke.test"
	password := "smoke-" + username + "-pw!"

	var reg struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	s.mustPost(parent, "/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, http.StatusCreated, &reg)

	res := s.mustPost(parent, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK, nil)

	for _, c := range res.Cookies() {
		if c.Name != s.cookieName {
			continue
		}
		tok, err := url.PathUnescape(c.Value)
		if err != nil {
			fatalf("login %s: bad cookie: %v", username, err)
		}
		return account{name: username, id: reg.User.ID, token: tok}
	}
	fatalf("login %s: no %s cookie", username, s.cookieName)
	return account{}
}

func (s *smoke) mustCreateChat(parent context.Context, owner account, peerID string) v1.ChatPayload {
	var out struct {
		Chat v1.ChatPayload `json:"chat"`
	}
	s.mustPost(parent, "/chats", owner.token, map[string]any{"participantIds": []string{peerID}}, http.StatusCreated, &out)
	if out.Chat.ID == "" || len(out.Chat.Participants) != 2 {
		fatalf("create chat: unexpected body %+v", out.Chat)
	}
	return out.Chat
}

func (s *smoke) mustPost(parent context.Context, path, token string, body any, want int, out any) *http.Response {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(b))
	if err != nil {
		fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.origin != "" {
		req.Header.Set("Origin", s.origin)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: s.cookieName, Value: url.PathEscape(token)})
	}

	res, err := s.http.Do(req)
	if err != nil {
		fatalf("POST %s: %v", path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != want {
		var eb struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&eb)
		fatalf("POST %s: status=%d want=%d code=%q msg=%q", path, res.StatusCode, want, eb.Error.Code, eb.Error.Message)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			fatalf("decode %s: %v", path, err)
		}
	}
	return res
}

func (s *smoke) mustConnect(parent context.Context, acc account) *chatclient.Socket {
	sock := chatclient.NewSocket(s.log.With("client", acc.name), chatclient.SocketConfig{
		URL:          s.wsURL,
		Origin:       s.origin,
		SessionToken: acc.token,
		CookieName:   s.cookieName,
		Retry:        chatclient.RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
		AckTimeout:   s.timeout,
	})
	mustStep(parent, s.timeout, "connect "+acc.name, sock.Connect)
	return sock
}

func mustNextEvent(parent context.Context, sock *chatclient.Socket, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case env, ok := <-sock.Events():
			if !ok {
				fatalf("connection closed while waiting for %q: %v", wantType, sock.Err())
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
		}
	}
}

func mustStep(parent context.Context, stepTimeout time.Duration, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		fatalf("%s: %v", name, err)
	}
}

func deriveWSURL(base string) string {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func (s *smoke) logf(format string, args ...any) {
	if s.verbose {
		fmt.Printf(format+"\n", args...)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
