package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserverCounters(t *testing.T) {
	m := New()

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.ConnRejected("unauthenticated")
	m.RoomJoin("ok")
	m.RoomJoin("denied")
	m.RoomJoin("denied")
	m.Submit("ok")
	m.Dropped()

	if got := testutil.ToFloat64(m.wsConnections); got != 1 {
		t.Fatalf("ws_connections=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.roomJoins.WithLabelValues("denied")); got != 2 {
		t.Fatalf("room_joins{denied}=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.wsRejected.WithLabelValues("unauthenticated")); got != 1 {
		t.Fatalf("ws_rejected{unauthenticated}=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.submits.WithLabelValues("ok")); got != 1 {
		t.Fatalf("submits{ok}=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 1 {
		t.Fatalf("dropped=%v want 1", got)
	}
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/chats/{chatId}/messages", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chats/"+id+"/messages", nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/chats/{chatId}/messages", "403"))
	if got != 3 {
		t.Fatalf("http_requests_total=%v want 3", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ConnOpened()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	for _, want := range []string{"huddle_ws_connections 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
