package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	v1 "huddle/contracts/realtime/v1"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
		{name: "port only", in: ":7000", want: "http://127.0.0.1:7000"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://huddle.example.com", want: "wss://huddle.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

// newTestApp builds an in-memory App with cheap password hashing.
func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	t.Setenv("HUDDLE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("HUDDLE_DATABASE_URL", "")
	t.Setenv("HUDDLE_REDIS_URL", "")
	t.Setenv("HUDDLE_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("HUDDLE_ARGON2_ITERATIONS", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		a.Close()
		srv.Close()
	})
	return a, srv
}

type testUser struct {
	id     string
	client *http.Client
}

func newHTTPClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func postJSON(t *testing.T, c *http.Client, u, body string) (*http.Response, []byte) {
	t.Helper()
	res, err := c.Post(u, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", u, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, b
}

func getJSON(t *testing.T, c *http.Client, u string) (*http.Response, []byte) {
	t.Helper()
	res, err := c.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, b
}

func signUp(t *testing.T, base, name string) testUser {
	t.Helper()
	c := newHTTPClient(t)
	email := name + "@example.com"

	res, body := postJSON(t, c, base+"/auth/register",
		fmt.Sprintf(`{"username":%q,"email":%q,"password":"correct horse battery"}`, name, email))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", name, res.StatusCode, body)
	}
	res, body = postJSON(t, c, base+"/auth/login",
		fmt.Sprintf(`{"email":%q,"password":"correct horse battery"}`, email))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status=%d body=%s", name, res.StatusCode, body)
	}

	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.User.ID == "" {
		t.Fatalf("login body %s: %v", body, err)
	}
	return testUser{id: out.User.ID, client: c}
}

func (u testUser) sessionToken(t *testing.T, base string) string {
	t.Helper()
	parsed, _ := url.Parse(base)
	for _, c := range u.client.Jar.Cookies(parsed) {
		if c.Name == "sessionId" {
			v, err := url.PathUnescape(c.Value)
			if err != nil {
				t.Fatalf("cookie value: %v", err)
			}
			return v
		}
	}
	t.Fatalf("no session cookie")
	return ""
}

func dialAs(t *testing.T, base, tok string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	h.Set("Origin", base)
	h.Set("Cookie", "sessionId="+url.PathEscape(tok))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, res, err := websocket.Dial(ctx, wsBaseURL(base)+"/ws", &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, typ, id string, payload any) {
	t.Helper()
	env, err := v1.New(typ, id, payload, time.Now().UTC())
	if err != nil {
		t.Fatalf("v1.New: %v", err)
	}
	b, _ := json.Marshal(env)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

func wsRead(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// waitOnline polls until userID has a registered websocket connection.
func waitOnline(t *testing.T, a *App, userID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for a.router.Connections(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never registered", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEndChatFlow(t *testing.T) {
	a, srv := newTestApp(t)
	base := srv.URL

	ada := signUp(t, base, "ada")
	bob := signUp(t, base, "bob")

	res, body := getJSON(t, ada.client, base+"/users")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), bob.id) {
		t.Fatalf("GET /users status=%d body=%s", res.StatusCode, body)
	}

	bobConn := dialAs(t, base, bob.sessionToken(t, base))
	waitOnline(t, a, bob.id)

	res, body = postJSON(t, ada.client, base+"/chats", fmt.Sprintf(`{"participantIds":[%q]}`, bob.id))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("POST /chats status=%d body=%s", res.StatusCode, body)
	}
	var created struct {
		Chat v1.ChatPayload `json:"chat"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	chatID := created.Chat.ID

	// Bob's private channel hears about the chat.
	if env := wsRead(t, bobConn); env.Type != v1.TypeNewChat {
		t.Fatalf("bob got %q want new_chat", env.Type)
	}

	adaConn := dialAs(t, base, ada.sessionToken(t, base))
	wsSend(t, adaConn, v1.TypeJoinRoom, "j1", v1.JoinRoomPayload{ChatID: chatID})
	wsSend(t, adaConn, v1.TypeSendMessage, "s1", v1.SendMessagePayload{ChatID: chatID, Content: "  hello bob  "})

	first := wsRead(t, adaConn)
	second := wsRead(t, adaConn)
	if first.Type != v1.TypeNewMessage || second.Type != v1.TypeAck || second.ReplyTo != "s1" {
		t.Fatalf("sender saw %q then %q(reply_to=%q); want new_message then ack", first.Type, second.Type, second.ReplyTo)
	}
	var ack v1.AckPayload
	if err := json.Unmarshal(second.Payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Success || ack.Message == nil || ack.Message.Content != "hello bob" || ack.Message.User.Username != "ada" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	res, body = getJSON(t, bob.client, base+"/chats/"+chatID+"/messages")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status=%d body=%s", res.StatusCode, body)
	}
	var page v1.MessagePage
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != ack.Message.ID || page.HasMore || page.NextCursor != nil {
		t.Fatalf("unexpected history: %+v", page)
	}

	res, body = getJSON(t, http.DefaultClient, base+"/metrics")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `huddle_messages_submitted_total{result="ok"} 1`) {
		t.Fatalf("metrics missing submit counter: status=%d", res.StatusCode)
	}
}

func TestHealthAndReady(t *testing.T) {
	_, srv := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, _ := getJSON(t, http.DefaultClient, srv.URL+path)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status=%d", path, res.StatusCode)
		}
		if res.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s missing security headers", path)
		}
	}
}

func TestReadyRequiresDB(t *testing.T) {
	t.Setenv("HUDDLE_READINESS_REQUIRE_DB", "true")
	_, srv := newTestApp(t)

	res, _ := getJSON(t, http.DefaultClient, srv.URL+"/readyz")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503 without a database", res.StatusCode)
	}
}

func TestNewRejectsMissingHMACKey(t *testing.T) {
	t.Setenv("HUDDLE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("HUDDLE_REQUIRE_TOKEN_HMAC", "true")
	t.Setenv("HUDDLE_TOKEN_HMAC_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil ||
		!strings.Contains(err.Error(), "HUDDLE_TOKEN_HMAC_KEY") {
		t.Fatalf("expected HMAC policy error, got %v", err)
	}
}
