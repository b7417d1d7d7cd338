package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"huddle/cmd/security/token"
)

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	cfg    Config
	hasher token.Hasher
	now    func() time.Time

	mu   sync.Mutex
	byID map[string]memSession
}

type memSession struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryStore(cfg Config, hasher token.Hasher) *MemoryStore {
	return &MemoryStore{
		cfg:    cfg,
		hasher: hasher,
		now:    time.Now,
		byID:   make(map[string]memSession),
	}
}

func (s *MemoryStore) Create(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("session: empty user id")
	}
	tok, err := token.NewOpaque()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[s.hasher.Hash(tok)] = memSession{userID: userID, expiresAt: s.now().Add(s.cfg.TTL)}
	return tok, nil
}

func (s *MemoryStore) Verify(ctx context.Context, tok string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(tok) == "" {
		return "", ErrUnauthenticated
	}
	k := s.hasher.Hash(tok)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[k]
	if !ok {
		return "", ErrUnauthenticated
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.byID, k)
		return "", ErrUnauthenticated
	}
	return sess.userID, nil
}

func (s *MemoryStore) Destroy(ctx context.Context, tok string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.byID, s.hasher.Hash(tok))
	s.mu.Unlock()
	return nil
}
