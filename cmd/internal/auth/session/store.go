package session

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Store is the session persistence boundary.
type Store interface {
	// Create mints a token bound to userID for the configured TTL.
	Create(ctx context.Context, userID string) (string, error)

	// Verify resolves token to its user id. Unknown or expired tokens return
	// ErrUnauthenticated; store failures wrap ErrUnavailable.
	Verify(ctx context.Context, token string) (string, error)

	// Destroy removes the session. Destroying an unknown token is not an error.
	Destroy(ctx context.Context, token string) error
}

// TokenFromRequest returns the session token presented on r: the URL-decoded
// value of the named cookie, or else an "Authorization: Bearer" token.
func TokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if r == nil {
		return "", false
	}
	if c, err := r.Cookie(cookieName); err == nil {
		if v := decodeCookie(c.Value); v != "" {
			return v, true
		}
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if v := strings.TrimSpace(auth[7:]); v != "" {
			return v, true
		}
	}
	return "", false
}

func decodeCookie(v string) string {
	v = strings.TrimSpace(v)
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}
