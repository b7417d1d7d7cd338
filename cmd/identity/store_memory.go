package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"huddle/cmd/identity/ids"
	"huddle/cmd/security/password"
)

// MemoryStore is an in-process Store for dev mode and tests.
type MemoryStore struct {
	hasher PasswordHasher
	dummy  string

	mu      sync.RWMutex
	byID    map[string]memUser
	byEmail map[string]string
	byName  map[string]string
}

type memUser struct {
	user User
	hash string
}

// NewMemoryStore builds an empty store. A nil hasher uses password.DefaultConfig.
func NewMemoryStore(h PasswordHasher) *MemoryStore {
	if h == nil {
		h = password.DefaultConfig()
	}
	dummy, _ := h.Hash(dummyPassword)
	return &MemoryStore{
		hasher:  h,
		dummy:   dummy,
		byID:    make(map[string]memUser),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

const dummyPassword = "huddle-timing-equalizer"

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	p, err := prepareUser(op, s.hasher, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.New(p.now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[p.usernameNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[p.emailNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{ID: id, Username: p.username, Email: p.email, CreatedAt: p.now}
	s.byID[id] = memUser{user: u, hash: p.hash}
	s.byName[p.usernameNorm] = id
	s.byEmail[p.emailNorm] = id
	return u, nil
}

func (s *MemoryStore) Authenticate(ctx context.Context, email, pw string) (User, error) {
	const op = "identity.Authenticate"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	rec, ok := s.byID[s.byEmail[NormalizeEmail(email)]]
	s.mu.RUnlock()

	if !ok {
		burnVerify(s.hasher, s.dummy, pw)
		return User{}, badCredentials(op)
	}
	match, err := s.hasher.Verify(rec.hash, pw)
	if err != nil || !match {
		return User{}, badCredentials(op)
	}
	return rec.user, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	rec, ok := s.byID[strings.TrimSpace(id)]
	s.mu.RUnlock()

	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUser", Resource: "user"}
	}
	return rec.user, nil
}

func (s *MemoryStore) ListPublic(ctx context.Context, excludeID string) ([]PublicUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]PublicUser, 0, len(s.byID))
	for id, rec := range s.byID {
		if id == excludeID {
			continue
		}
		out = append(out, rec.user.Public())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := NormalizeUsername(out[i].Username), NormalizeUsername(out[j].Username)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
