package realtime

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"huddle/cmd/internal/auth/session"
	v1 "huddle/contracts/realtime/v1"
)

// SessionVerifier resolves a session token to its user id.
// session.Store satisfies it.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Submit results reported to the Observer.
const (
	submitOK      = "ok"
	submitInvalid = "invalid"
	submitAuth    = "auth"
	submitDenied  = "denied"
	submitError   = "error"
)

const chatLockStripes = 64

// Pipeline turns a send_message request into a persisted, broadcast message.
type Pipeline struct {
	log      *slog.Logger
	sessions SessionVerifier
	members  MembershipChecker
	store    MessageStore
	router   *Router
	obs      Observer
	now      func() time.Time
	timeout  time.Duration

	// Persist and broadcast for one chat never interleave. last[i] is the
	// newest timestamp issued under locks[i], so created_at never goes
	// backwards within a chat even if the wall clock does.
	locks [chatLockStripes]sync.Mutex
	last  [chatLockStripes]time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithPipelineObserver(obs Observer) PipelineOption {
	return func(p *Pipeline) {
		if obs != nil {
			p.obs = obs
		}
	}
}

// WithClock overrides the server clock used for message timestamps.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithSubmitTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPipeline(log *slog.Logger, sessions SessionVerifier, members MembershipChecker, store MessageStore, router *Router, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		log:      log,
		sessions: sessions,
		members:  members,
		store:    store,
		router:   router,
		obs:      nopObserver{},
		now:      time.Now,
		timeout:  submitTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Submit validates, authorizes, persists and broadcasts one message for c.
//
// The work runs on a context detached from ctx: once validation passes, a
// client disconnect does not abort persistence or the broadcast.
func (p *Pipeline) Submit(ctx context.Context, c *Client, in v1.SendMessagePayload) (StoredMessage, error) {
	chatID := strings.TrimSpace(in.ChatID)
	content := strings.TrimSpace(in.Content)
	if chatID == "" || content == "" || utf8.RuneCountInString(content) > maxMessageChars {
		p.obs.Submit(submitInvalid)
		return StoredMessage{}, ErrInvalidMessage
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	userID, err := p.sessions.Verify(ctx, c.Token())
	if errors.Is(err, session.ErrUnavailable) {
		p.obs.Submit(submitError)
		p.log.Error("submit.auth.unavailable", "conn_id", c.ConnID, "user_id", c.UserID, "err", err)
		return StoredMessage{}, fmt.Errorf("%w: session lookup: %v", ErrPersistence, err)
	}
	if err != nil || userID != c.UserID {
		p.obs.Submit(submitAuth)
		p.log.Info("submit.auth.fail", "conn_id", c.ConnID, "user_id", c.UserID, "err", err)
		return StoredMessage{}, ErrSessionExpired
	}

	ok, err := p.members.IsParticipant(ctx, chatID, c.UserID)
	if err != nil {
		p.obs.Submit(submitError)
		p.log.Error("submit.membership.fail", "chat_id", chatID, "user_id", c.UserID, "err", err)
		return StoredMessage{}, fmt.Errorf("%w: membership lookup: %v", ErrPersistence, err)
	}
	if !ok {
		p.obs.Submit(submitDenied)
		p.log.Info("submit.denied", "chat_id", chatID, "user_id", c.UserID)
		return StoredMessage{}, ErrNotParticipant
	}

	stripe := lockStripe(chatID)
	mu := &p.locks[stripe]
	mu.Lock()
	defer mu.Unlock()

	now := p.now().UTC().Truncate(time.Microsecond)
	if last := p.last[stripe]; !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	id, err := NewMessageID(now)
	if err != nil {
		p.obs.Submit(submitError)
		return StoredMessage{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	msg, err := p.store.Append(ctx, AppendInput{
		ID:        id,
		ChatID:    chatID,
		UserID:    c.UserID,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		p.obs.Submit(submitError)
		p.log.Error("submit.persist.fail", "chat_id", chatID, "user_id", c.UserID, "err", err)
		return StoredMessage{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	p.last[stripe] = now

	env, err := v1.New(v1.TypeNewMessage, NewEnvelopeID(now), msg.Payload(), now)
	if err != nil {
		p.obs.Submit(submitError)
		return StoredMessage{}, fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	delivered := p.router.Broadcast(chatID, env)

	p.obs.Submit(submitOK)
	p.log.Debug("submit.ok", "chat_id", chatID, "message_id", id, "delivered", delivered)
	return msg, nil
}

func lockStripe(chatID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return h.Sum32() % chatLockStripes
}
