package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"huddle/cmd/internal/chat"
	v1 "huddle/contracts/realtime/v1"
)

// MembershipChecker answers whether a user participates in a chat. Unknown
// chats report false.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// Join results reported to the Observer.
const (
	joinOK      = "ok"
	joinDenied  = "denied"
	joinError   = "error"
	joinStale   = "stale"
	joinAlready = "already"
)

// Router maps chat rooms and per-user channels to live connections.
//
// State is in-memory only and starts empty. Every mutation happens inside one
// critical section, so a reader never observes a client that is in a room but
// not registered, or the reverse.
type Router struct {
	log     *slog.Logger
	members MembershipChecker
	obs     Observer

	mu     sync.RWMutex
	closed bool
	rooms  map[string]map[string]*Client  // chatID -> connID -> client
	users  map[string]map[string]*Client  // userID -> connID -> client
	joined map[string]map[string]struct{} // connID -> chatIDs
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithObserver reports joins and drops to obs.
func WithObserver(obs Observer) RouterOption {
	return func(r *Router) {
		if obs != nil {
			r.obs = obs
		}
	}
}

func NewRouter(log *slog.Logger, members MembershipChecker, opts ...RouterOption) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		log:     log,
		members: members,
		obs:     nopObserver{},
		rooms:   make(map[string]map[string]*Client),
		users:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register subscribes c to its user's private channel.
func (r *Router) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRouterClosed
	}
	conns := r.users[c.UserID]
	if conns == nil {
		conns = make(map[string]*Client)
		r.users[c.UserID] = conns
	}
	conns[c.ConnID] = c
	if r.joined[c.ConnID] == nil {
		r.joined[c.ConnID] = make(map[string]struct{})
	}
	return nil
}

// Unregister removes c from its user channel and every room it joined.
func (r *Router) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(c)
}

func (r *Router) unregisterLocked(c *Client) {
	for chatID := range r.joined[c.ConnID] {
		if room := r.rooms[chatID]; room != nil {
			delete(room, c.ConnID)
			if len(room) == 0 {
				delete(r.rooms, chatID)
			}
		}
	}
	delete(r.joined, c.ConnID)

	if conns := r.users[c.UserID]; conns != nil {
		delete(conns, c.ConnID)
		if len(conns) == 0 {
			delete(r.users, c.UserID)
		}
	}
}

// JoinRoom subscribes c to chatID if its user participates in that chat.
//
// Non-members, unknown chats and lookup failures are silent no-ops for the
// client. It reports whether c is subscribed afterwards.
func (r *Router) JoinRoom(ctx context.Context, c *Client, chatID string) bool {
	if chatID == "" {
		r.obs.RoomJoin(joinDenied)
		return false
	}

	ok, err := r.members.IsParticipant(ctx, chatID, c.UserID)
	if err != nil {
		r.obs.RoomJoin(joinError)
		r.log.Info("router.join.error", "conn_id", c.ConnID, "user_id", c.UserID, "chat_id", chatID, "err", err)
		return false
	}
	if !ok {
		r.obs.RoomJoin(joinDenied)
		r.log.Info("router.join.denied", "conn_id", c.ConnID, "user_id", c.UserID, "chat_id", chatID)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The connection may have gone away during the lookup.
	rooms, registered := r.joined[c.ConnID]
	if r.closed || !registered {
		r.obs.RoomJoin(joinStale)
		return false
	}
	if _, dup := rooms[chatID]; dup {
		r.obs.RoomJoin(joinAlready)
		return true
	}

	room := r.rooms[chatID]
	if room == nil {
		room = make(map[string]*Client)
		r.rooms[chatID] = room
	}
	room[c.ConnID] = c
	rooms[chatID] = struct{}{}

	r.obs.RoomJoin(joinOK)
	r.log.Debug("router.join", "conn_id", c.ConnID, "user_id", c.UserID, "chat_id", chatID)
	return true
}

// Broadcast offers env to every connection subscribed to chatID, the sender
// included. Full queues drop the envelope. It returns the delivered count.
func (r *Router) Broadcast(chatID string, env v1.Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fanout(r.rooms[chatID], env)
}

// BroadcastToUser offers env on userID's private channel.
func (r *Router) BroadcastToUser(userID string, env v1.Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fanout(r.users[userID], env)
}

func (r *Router) fanout(conns map[string]*Client, env v1.Envelope) int {
	n := 0
	for _, c := range conns {
		if c.offer(env) {
			n++
			continue
		}
		r.obs.Dropped()
		r.log.Info("router.drop", "conn_id", c.ConnID, "type", env.Type)
	}
	return n
}

// NotifyChatCreated sends new_chat to every participant's private channel.
func (r *Router) NotifyChatCreated(_ context.Context, c chat.Chat) {
	now := time.Now().UTC()
	env, err := v1.New(v1.TypeNewChat, NewEnvelopeID(now), c.Payload(), now)
	if err != nil {
		r.log.Error("router.new_chat.encode", "chat_id", c.ID, "err", err)
		return
	}
	for _, p := range c.Participants {
		r.BroadcastToUser(p.UserID, env)
	}
}

// RoomSize is the number of connections subscribed to chatID.
func (r *Router) RoomSize(chatID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[chatID])
}

// Connections is the number of live connections userID has registered.
func (r *Router) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Close unregisters and closes every client. Later Registers fail.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	var all []*Client
	for _, conns := range r.users {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	for _, c := range all {
		r.unregisterLocked(c)
	}
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

var _ chat.Notifier = (*Router)(nil)
