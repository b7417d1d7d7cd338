package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	v1 "huddle/contracts/realtime/v1"
)

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{MaxAttempts: n, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPFetcherFetchPage(t *testing.T) {
	t.Parallel()

	next := "Y3Vyc29y"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/c1/messages" {
			http.NotFound(w, r)
			return
		}
		c, err := r.Cookie("sid")
		if err != nil || c.Value != "tok-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthorized", "message": "no"}})
			return
		}
		q := r.URL.Query()
		if q.Get("limit") != "20" || q.Get("cursor") != "older" {
			t.Errorf("query=%v", q)
		}
		writeJSON(w, http.StatusOK, v1.MessagePage{
			Messages:   []v1.MessagePayload{msg("m1", "c1", 0), msg("m2", "c1", time.Second)},
			NextCursor: &next,
			HasMore:    true,
		})
	}))
	t.Cleanup(srv.Close)

	f, err := NewHTTPFetcher(srv.URL+"/", WithSessionToken("tok-1"), WithCookieName("sid"), WithFetchRetry(fastRetry(1)))
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	p, err := f.FetchPage(context.Background(), "c1", "older", 20)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(p.Messages) != 2 || p.Messages[0].ID != "m1" || p.NextCursor != next || !p.HasMore {
		t.Fatalf("page=%+v", p)
	}
}

func TestHTTPFetcherNullCursor(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("first page must not send a query: %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"messages":[],"nextCursor":null,"hasMore":false}`))
	}))
	t.Cleanup(srv.Close)

	f, err := NewHTTPFetcher(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	p, err := f.FetchPage(context.Background(), "c1", "", 0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if p.NextCursor != "" || p.HasMore || len(p.Messages) != 0 {
		t.Fatalf("page=%+v", p)
	}
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]string{"code": "unavailable", "message": "later"}})
			return
		}
		writeJSON(w, http.StatusOK, v1.MessagePage{Messages: []v1.MessagePayload{msg("m1", "c1", 0)}})
	}))
	t.Cleanup(srv.Close)

	f, _ := NewHTTPFetcher(srv.URL, WithFetchRetry(fastRetry(3)))
	p, err := f.FetchPage(context.Background(), "c1", "", 0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if calls.Load() != 3 || len(p.Messages) != 1 {
		t.Fatalf("calls=%d page=%+v", calls.Load(), p)
	}
}

func TestHTTPFetcherClientErrorsArePermanent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		code   string
		is     error
	}{
		{"forbidden", http.StatusForbidden, "forbidden", ErrForbidden},
		{"unauthorized", http.StatusUnauthorized, "unauthorized", ErrUnauthorized},
		{"bad cursor", http.StatusBadRequest, "invalid_cursor", nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, tc.status, map[string]any{"error": map[string]string{"code": tc.code, "message": "nope"}})
			}))
			t.Cleanup(srv.Close)

			f, _ := NewHTTPFetcher(srv.URL, WithFetchRetry(fastRetry(4)))
			_, err := f.FetchPage(context.Background(), "c1", "", 0)

			var se *StatusError
			if !errors.As(err, &se) || se.Status != tc.status || se.Code != tc.code || se.Msg != "nope" {
				t.Fatalf("err=%v", err)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("err=%v want %v", err, tc.is)
			}
			if calls.Load() != 1 {
				t.Fatalf("calls=%d want 1", calls.Load())
			}
		})
	}
}

func TestNewHTTPFetcherRejectsBadURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "localhost:8080", "://x"} {
		if _, err := NewHTTPFetcher(raw); err == nil {
			t.Fatalf("NewHTTPFetcher(%q) accepted", raw)
		}
	}
}

func TestHTTPFetcherFeedsTimeline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, v1.MessagePage{Messages: []v1.MessagePayload{msg("m1", "c1", 0)}})
	}))
	t.Cleanup(srv.Close)

	f, _ := NewHTTPFetcher(srv.URL)
	tl := NewTimeline(f, 50)
	if err := tl.Mount(context.Background(), "c1"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if ids(tl.Messages()) != "m1" || tl.HasMore() {
		t.Fatalf("messages=%s hasMore=%v", ids(tl.Messages()), tl.HasMore())
	}
}
