package session

import (
	"context"
	"errors"
	"net/http"

	"huddle/cmd/internal/httpjson"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Token  string
}

type principalKey struct{}

// Authenticate resolves the request's session token. It returns
// ErrUnauthenticated when no valid token is presented.
func Authenticate(r *http.Request, store Store, cookieName string) (Principal, error) {
	tok, ok := TokenFromRequest(r, cookieName)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	userID, err := store.Verify(r.Context(), tok)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, Token: tok}, nil
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by Require.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// Require rejects requests without a live session: 401 for a missing or
// unknown token, 503 when the store cannot answer.
func Require(store Store, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := Authenticate(r, store, cookieName)
			if err != nil {
				WriteAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WriteAuthError maps an Authenticate error to its JSON response.
func WriteAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnavailable) {
		httpjson.Error(w, http.StatusServiceUnavailable, "session_unavailable", "please retry later")
		return
	}
	httpjson.Error(w, http.StatusUnauthorized, "unauthenticated", "no valid session")
}
