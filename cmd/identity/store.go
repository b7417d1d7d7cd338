package identity

import (
	"context"
	"strings"
	"time"

	"huddle/cmd/security/password"
)

// User is a huddle account. The password hash never leaves the store.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

// PublicUser is the profile visible to other users.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}

// CreateUserInput describes a registration. Now defaults to the current time.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Now      time.Time
}

// Store is the account persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// Authenticate resolves email + password to a user. Unknown email and wrong
	// password both return ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, pw string) (User, error)

	GetUser(ctx context.Context, id string) (User, error)

	// ListPublic returns every user except excludeID, ordered by username.
	ListPublic(ctx context.Context, excludeID string) ([]PublicUser, error)
}

// PasswordHasher is satisfied by password.Config.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(encoded, pw string) (bool, error)
}

var _ PasswordHasher = password.Config{}

type prepared struct {
	username, usernameNorm string
	email, emailNorm       string
	hash                   string
	now                    time.Time
}

// prepareUser validates and normalizes a registration and hashes its password.
func prepareUser(op string, h PasswordHasher, in CreateUserInput) (prepared, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return prepared{}, invalid(op, "username, email and password are required")
	}
	if msg := checkUsername(username); msg != "" {
		return prepared{}, invalid(op, msg)
	}
	if msg := checkEmail(email); msg != "" {
		return prepared{}, invalid(op, msg)
	}

	hash, err := h.Hash(in.Password)
	if err != nil {
		return prepared{}, invalid(op, err.Error())
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	return prepared{
		username:     username,
		usernameNorm: NormalizeUsername(username),
		email:        email,
		emailNorm:    NormalizeEmail(email),
		hash:         hash,
		now:          now.UTC().Truncate(time.Microsecond),
	}, nil
}

// burnVerify spends a verification on a fixed hash so unknown emails cost the
// same as wrong passwords.
func burnVerify(h PasswordHasher, dummy string, pw string) {
	if dummy != "" {
		_, _ = h.Verify(dummy, pw)
	}
}
