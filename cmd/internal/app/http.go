package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// routes builds the full HTTP surface. Middleware order, outermost first:
// security headers, CORS, request logging, per-IP rate limit, then the mux
// router with its route-aware metrics.
func (a *App) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(a.metrics.Middleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", a.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)

	a.auth.Register(r)
	a.chatAPI.Register(r)
	r.Handle("/ws", a.ws).Methods(http.MethodGet)

	var h http.Handler = r
	h = WithRateLimit(h, a.httpLimiter, a.log)
	h = WithRequestLogging(h, a.log)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return h
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && a.dbPool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}

	if a.dbPool != nil {
		if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}
	if a.rdb != nil {
		if err := PingRedis(r.Context(), a.rdb, 2*time.Second); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.redis.not_ready", "err", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
