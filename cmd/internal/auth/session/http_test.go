package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"huddle/cmd/security/token"
)

type downStore struct{ Store }

func (downStore) Verify(context.Context, string) (string, error) {
	return "", errors.Join(ErrUnavailable, errors.New("dial tcp: connection refused"))
}

func TestRequire(t *testing.T) {
	store := NewMemoryStore(DefaultConfig(), token.Hasher{})
	tok, err := store.Create(context.Background(), "01HUSER000000000000000000A")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var seen Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			t.Errorf("principal missing from context")
		}
		seen = p
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		store  Store
		cookie string
		want   int
	}{
		{name: "valid", store: store, cookie: tok, want: http.StatusNoContent},
		{name: "missing", store: store, want: http.StatusUnauthorized},
		{name: "unknown", store: store, cookie: "nope", want: http.StatusUnauthorized},
		{name: "store down", store: downStore{}, cookie: tok, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/chats", nil)
			if tc.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "sessionId", Value: tc.cookie})
			}
			rr := httptest.NewRecorder()
			Require(tc.store, "sessionId")(next).ServeHTTP(rr, r)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}

	if seen.UserID != "01HUSER000000000000000000A" || seen.Token != tok {
		t.Fatalf("principal=%+v", seen)
	}
}

func TestPrincipalFromEmptyContext(t *testing.T) {
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Fatalf("expected no principal")
	}
}
