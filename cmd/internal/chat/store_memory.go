package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"huddle/cmd/identity"
	"huddle/cmd/identity/ids"
)

// UserDirectory resolves participant profiles. identity.Store satisfies it.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// MemoryStore is an in-process Store for dev mode and tests.
type MemoryStore struct {
	users UserDirectory

	mu      sync.RWMutex
	chats   map[string]Chat
	members map[string]map[string]struct{}
}

func NewMemoryStore(users UserDirectory) *MemoryStore {
	return &MemoryStore{
		users:   users,
		chats:   make(map[string]Chat),
		members: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Chat, error) {
	if len(in.ParticipantIDs) == 0 {
		return Chat{}, fmt.Errorf("%w: no participants", ErrInvalidInput)
	}

	id, err := ids.New(in.Now)
	if err != nil {
		return Chat{}, err
	}
	c := Chat{ID: id, Name: in.Name, CreatedAt: in.Now}

	set := make(map[string]struct{}, len(in.ParticipantIDs))
	for _, uid := range in.ParticipantIDs {
		u, err := s.users.GetUser(ctx, uid)
		if errors.Is(err, identity.ErrNotFound) {
			return Chat{}, fmt.Errorf("%w: %s", ErrUnknownUser, uid)
		}
		if err != nil {
			return Chat{}, err
		}
		set[uid] = struct{}{}
		c.Participants = append(c.Participants, Participant{
			ChatID:   id,
			UserID:   uid,
			JoinedAt: in.Now,
			User:     u.Public(),
		})
	}

	s.mu.Lock()
	s.chats[id] = c
	s.members[id] = set
	s.mu.Unlock()
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, chatID string) (Chat, error) {
	if err := ctx.Err(); err != nil {
		return Chat{}, err
	}
	s.mu.RLock()
	c, ok := s.chats[strings.TrimSpace(chatID)]
	s.mu.RUnlock()
	if !ok {
		return Chat{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListForUser(ctx context.Context, userID string) ([]Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Chat, 0)
	for id, set := range s.members {
		if _, ok := set[userID]; ok {
			out = append(out, s.chats[id])
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[chatID][userID]
	return ok, nil
}
