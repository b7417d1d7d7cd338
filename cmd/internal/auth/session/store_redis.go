package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"huddle/cmd/security/token"
)

// RedisStore keeps sessions as plain string keys with a server-side expiry.
// The client is owned by the caller.
type RedisStore struct {
	rdb    redis.UniversalClient
	cfg    Config
	hasher token.Hasher
}

func NewRedisStore(rdb redis.UniversalClient, cfg Config, hasher token.Hasher) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb, cfg: cfg, hasher: hasher}, nil
}

func (s *RedisStore) key(tok string) string {
	return s.cfg.KeyPrefix + s.hasher.Hash(tok)
}

func (s *RedisStore) Create(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("session: empty user id")
	}

	tok, err := token.NewOpaque()
	if err != nil {
		return "", err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(tok), userID, s.cfg.TTL).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		// A random UUID collided with a live session.
		return "", fmt.Errorf("%w: token collision", ErrUnavailable)
	}
	return tok, nil
}

func (s *RedisStore) Verify(ctx context.Context, tok string) (string, error) {
	if strings.TrimSpace(tok) == "" {
		return "", ErrUnauthenticated
	}
	userID, err := s.rdb.Get(ctx, s.key(tok)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

func (s *RedisStore) Destroy(ctx context.Context, tok string) error {
	if strings.TrimSpace(tok) == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, s.key(tok)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
