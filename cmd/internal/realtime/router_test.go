package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	v1 "huddle/contracts/realtime/v1"
)

type countingObserver struct {
	nopObserver
	mu      sync.Mutex
	joins   map[string]int
	submits map[string]int
	dropped int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{joins: map[string]int{}, submits: map[string]int{}}
}

func (o *countingObserver) RoomJoin(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joins[result]++
}

func (o *countingObserver) Submit(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submits[result]++
}

func (o *countingObserver) Dropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

type membershipFunc func(ctx context.Context, chatID, userID string) (bool, error)

func (f membershipFunc) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return f(ctx, chatID, userID)
}

func testEnvelope(t *testing.T) v1.Envelope {
	t.Helper()
	env, err := v1.New(v1.TypeNewMessage, "env-1", v1.MessagePayload{ID: "m1"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestRouterJoinRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	ann, bo, cy := env.user(t, "ann"), env.user(t, "bo"), env.user(t, "cy")
	c := env.chat(t, ann, bo)

	annConn := env.client(t, ann)
	cyConn := env.client(t, cy)

	if !env.router.JoinRoom(context.Background(), annConn, c.ID) {
		t.Fatalf("participant join refused")
	}
	if env.router.JoinRoom(context.Background(), cyConn, c.ID) {
		t.Fatalf("non-participant joined")
	}
	if env.router.JoinRoom(context.Background(), annConn, "01HNOSUCHCHAT0000000000000") {
		t.Fatalf("joined unknown chat")
	}
	if env.router.JoinRoom(context.Background(), annConn, "") {
		t.Fatalf("joined empty chat id")
	}

	if got := env.router.Broadcast(c.ID, testEnvelope(t)); got != 1 {
		t.Fatalf("delivered=%d, want 1", got)
	}
	if n := len(drain(cyConn)); n != 0 {
		t.Fatalf("non-participant received %d envelopes", n)
	}
	if n := len(drain(annConn)); n != 1 {
		t.Fatalf("participant received %d envelopes", n)
	}
}

func TestRouterJoinIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ann := env.user(t, "ann")
	c := env.chat(t, ann)
	conn := env.client(t, ann)

	for i := 0; i < 3; i++ {
		if !env.router.JoinRoom(context.Background(), conn, c.ID) {
			t.Fatalf("join %d refused", i)
		}
	}
	if n := env.router.RoomSize(c.ID); n != 1 {
		t.Fatalf("room size=%d after repeated joins", n)
	}
	env.router.Broadcast(c.ID, testEnvelope(t))
	if n := len(drain(conn)); n != 1 {
		t.Fatalf("received %d copies, want 1", n)
	}
}

func TestRouterJoinLookupErrorIsSilent(t *testing.T) {
	obs := newCountingObserver()
	r := NewRouter(discardLogger(), membershipFunc(func(context.Context, string, string) (bool, error) {
		return false, errors.New("db down")
	}), WithObserver(obs))
	defer r.Close()

	c := NewClient("conn-1", "user-1", "tok", 8)
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.JoinRoom(context.Background(), c, "chat-1") {
		t.Fatalf("join succeeded despite lookup failure")
	}
	if len(drain(c)) != 0 {
		t.Fatalf("a failed join must not answer the client")
	}
	if obs.joins[joinError] != 1 {
		t.Fatalf("join results=%v", obs.joins)
	}
}

func TestRouterUnregisterRemovesEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ann, bo := env.user(t, "ann"), env.user(t, "bo")
	c1 := env.chat(t, ann, bo)
	c2 := env.chat(t, ann)

	conn := env.client(t, ann)
	env.router.JoinRoom(context.Background(), conn, c1.ID)
	env.router.JoinRoom(context.Background(), conn, c2.ID)
	if got := env.router.Connections(ann.ID); got != 1 {
		t.Fatalf("Connections=%d want 1", got)
	}

	env.router.Unregister(conn)

	if got := env.router.Connections(ann.ID); got != 0 {
		t.Fatalf("Connections=%d after unregister", got)
	}

	if env.router.RoomSize(c1.ID) != 0 || env.router.RoomSize(c2.ID) != 0 {
		t.Fatalf("client still subscribed after unregister")
	}
	if got := env.router.BroadcastToUser(ann.ID, testEnvelope(t)); got != 0 {
		t.Fatalf("user channel still delivers: %d", got)
	}
	if env.router.JoinRoom(context.Background(), conn, c1.ID) {
		t.Fatalf("unregistered client re-joined")
	}
}

func TestRouterJoinRacingUnregisterLeavesNoSubscription(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter(discardLogger(), membershipFunc(func(context.Context, string, string) (bool, error) {
		<-release
		return true, nil
	}))
	defer r.Close()

	c := NewClient("conn-1", "user-1", "tok", 8)
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan bool)
	go func() { done <- r.JoinRoom(context.Background(), c, "chat-1") }()

	r.Unregister(c)
	close(release)

	if <-done {
		t.Fatalf("join reported success for an unregistered client")
	}
	if r.RoomSize("chat-1") != 0 {
		t.Fatalf("stale subscription left behind")
	}
}

func TestRouterDropsWhenQueueFull(t *testing.T) {
	obs := newCountingObserver()
	r := NewRouter(discardLogger(), membershipFunc(func(context.Context, string, string) (bool, error) {
		return true, nil
	}), WithObserver(obs))
	defer r.Close()

	slow := NewClient("slow", "user-1", "tok", 1)
	fast := NewClient("fast", "user-2", "tok", 8)
	for _, c := range []*Client{slow, fast} {
		if err := r.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
		r.JoinRoom(context.Background(), c, "chat-1")
	}

	env := testEnvelope(t)
	if got := r.Broadcast("chat-1", env); got != 2 {
		t.Fatalf("first broadcast delivered %d", got)
	}
	if got := r.Broadcast("chat-1", env); got != 1 {
		t.Fatalf("second broadcast delivered %d, want 1 (slow queue full)", got)
	}
	if obs.dropped != 1 {
		t.Fatalf("dropped=%d", obs.dropped)
	}
	if len(drain(fast)) != 2 {
		t.Fatalf("fast client missed a broadcast")
	}
}

func TestRouterNotifyChatCreated(t *testing.T) {
	env := newTestEnv(t)
	ann, bo, cy := env.user(t, "ann"), env.user(t, "bo"), env.user(t, "cy")

	annConn := env.client(t, ann)
	boPhone := env.client(t, bo)
	boLaptop := env.client(t, bo)
	cyConn := env.client(t, cy)

	c := env.chat(t, ann, bo)
	env.router.NotifyChatCreated(context.Background(), c)

	for name, conn := range map[string]*Client{"ann": annConn, "bo phone": boPhone, "bo laptop": boLaptop} {
		got := drain(conn)
		if len(got) != 1 || got[0].Type != v1.TypeNewChat {
			t.Fatalf("%s received %+v", name, got)
		}
		var p v1.ChatPayload
		if err := json.Unmarshal(got[0].Payload, &p); err != nil {
			t.Fatalf("decode chat: %v", err)
		}
		if p.ID != c.ID || len(p.Participants) != 2 {
			t.Fatalf("%s chat payload = %+v", name, p)
		}
	}
	if n := len(drain(cyConn)); n != 0 {
		t.Fatalf("outsider notified %d times", n)
	}
}

func TestRouterClose(t *testing.T) {
	env := newTestEnv(t)
	ann := env.user(t, "ann")
	conn := env.client(t, ann)

	env.router.Close()

	select {
	case <-conn.Done():
	default:
		t.Fatalf("client not closed by router shutdown")
	}
	if err := env.router.Register(NewClient("late", ann.ID, "tok", 8)); !errors.Is(err, ErrRouterClosed) {
		t.Fatalf("register after close: %v", err)
	}
}

func TestRouterConcurrentUse(t *testing.T) {
	env := newTestEnv(t)
	ann, bo := env.user(t, "ann"), env.user(t, "bo")
	c := env.chat(t, ann, bo)
	msg := testEnvelope(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewClient(NewEnvelopeID(time.Now()), ann.ID, "tok", 4)
			if err := env.router.Register(conn); err != nil {
				t.Errorf("register: %v", err)
				return
			}
			env.router.JoinRoom(context.Background(), conn, c.ID)
			env.router.Broadcast(c.ID, msg)
			env.router.Unregister(conn)
		}()
	}
	wg.Wait()

	if n := env.router.RoomSize(c.ID); n != 0 {
		t.Fatalf("room size=%d after all clients left", n)
	}
}
