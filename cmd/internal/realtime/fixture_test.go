package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/chat"
	"huddle/cmd/security/password"
	"huddle/cmd/security/token"
	v1 "huddle/contracts/realtime/v1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires in-memory collaborators the way app.New does in dev mode.
type testEnv struct {
	users    *identity.MemoryStore
	chats    *chat.MemoryStore
	sessions *session.MemoryStore
	messages *InMemoryStore
	router   *Router
	pipeline *Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1

	users := identity.NewMemoryStore(pw)
	chats := chat.NewMemoryStore(users)
	sessions := session.NewMemoryStore(session.DefaultConfig(), token.Hasher{})
	messages := NewInMemoryStore(users)
	router := NewRouter(discardLogger(), chats)
	pipeline := NewPipeline(discardLogger(), sessions, chats, messages, router)
	t.Cleanup(router.Close)

	return &testEnv{
		users:    users,
		chats:    chats,
		sessions: sessions,
		messages: messages,
		router:   router,
		pipeline: pipeline,
	}
}

func (e *testEnv) user(t *testing.T, name string) identity.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), identity.CreateUserInput{
		Username: name,
		Email:    name + "@example.com",
		Password: name + "-password-1",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (e *testEnv) chat(t *testing.T, members ...identity.User) chat.Chat {
	t.Helper()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	c, err := e.chats.Create(context.Background(), chat.CreateInput{ParticipantIDs: ids, Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return c
}

func (e *testEnv) login(t *testing.T, u identity.User) string {
	t.Helper()
	tok, err := e.sessions.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return tok
}

// client registers a fresh connection for u with the router.
func (e *testEnv) client(t *testing.T, u identity.User) *Client {
	t.Helper()
	connID, err := NewConnID(time.Now().UTC())
	if err != nil {
		t.Fatalf("conn id: %v", err)
	}
	c := NewClient(connID, u.ID, e.login(t, u), 64)
	if err := e.router.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	return c
}

// drain returns every envelope currently queued for c.
func drain(c *Client) []v1.Envelope {
	var out []v1.Envelope
	for {
		select {
		case env := <-c.Send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func decodeMessage(t *testing.T, env v1.Envelope) v1.MessagePayload {
	t.Helper()
	if env.Type != v1.TypeNewMessage {
		t.Fatalf("envelope type=%q, want %q", env.Type, v1.TypeNewMessage)
	}
	var p v1.MessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode message payload: %v", err)
	}
	return p
}

func mustJSONRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
