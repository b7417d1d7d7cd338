package session

import "errors"

var (
	// ErrUnauthenticated means the token is absent, unknown or expired.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnavailable wraps failures of the backing store. Callers must fail closed.
	ErrUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
