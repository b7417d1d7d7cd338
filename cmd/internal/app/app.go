// Package app wires the huddle server runtime: config, logging, storage,
// HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle/cmd/identity"
	authapi "huddle/cmd/internal/auth/api"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/chatapi"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/ratelimit"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/security/password"
	"huddle/cmd/security/token"
)

// App owns every long-lived dependency of a running server.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	router      *realtime.Router
	ws          *realtime.WSGateway
	auth        *authapi.Handler
	chatAPI     *chatapi.Handler
	metrics     *metrics.Metrics
	httpLimiter *ratelimit.Keyed

	handler http.Handler
}

// stores is the persistence set chosen at startup.
type stores struct {
	users    identity.Store
	chats    chat.Store
	messages realtime.MessageStore
	sessions session.Store
}

// New constructs a fully wired App. Without a database URL every store runs
// in memory; without a Redis URL sessions do.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	hasher, err := newTokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	pw, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	st, err := a.openStores(ctx, pw, sessCfg, hasher)
	if err != nil {
		a.closeBackends()
		return nil, err
	}

	a.router = realtime.NewRouter(log, st.chats, realtime.WithObserver(a.metrics))
	chats := chat.NewService(st.chats, a.router, log)
	pipeline := realtime.NewPipeline(log, st.sessions, chats, st.messages, a.router,
		realtime.WithPipelineObserver(a.metrics))

	wsCfg := realtime.GatewayConfigFromEnv()
	wsCfg.CookieName = sessCfg.CookieName
	a.ws = realtime.NewWSGateway(log, wsCfg, st.sessions, a.router, pipeline, a.metrics)

	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), sessCfg, st.users, st.sessions)
	if err != nil {
		a.closeBackends()
		return nil, err
	}
	a.chatAPI, err = chatapi.NewHandler(log, chatapi.Options{
		Chats:      chats,
		Users:      st.users,
		Messages:   st.messages,
		Sessions:   st.sessions,
		CookieName: sessCfg.CookieName,
	})
	if err != nil {
		a.closeBackends()
		return nil, err
	}

	a.httpLimiter = ratelimit.NewKeyed(cfg.HTTPRateRPS, time.Second, cfg.HTTPRateBurst, 5*time.Minute)
	go a.httpLimiter.Run(time.Minute)
	a.auth.RunSweeper(time.Minute)

	a.handler = a.routes()
	return a, nil
}

func (a *App) openStores(ctx context.Context, pw password.Config, sessCfg session.Config, hasher token.Hasher) (stores, error) {
	var st stores

	if a.cfg.dbEnabled() {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return stores{}, fmt.Errorf("db: %w", err)
		}
		a.dbPool = pool

		users, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema), identity.WithPasswordHasher(pw))
		if err != nil {
			return stores{}, err
		}
		chats, err := chat.NewPostgresStore(pool, chat.WithSchema(a.cfg.DBSchema))
		if err != nil {
			return stores{}, err
		}
		messages, err := realtime.NewPostgresStore(pool, realtime.WithSchema(a.cfg.DBSchema))
		if err != nil {
			return stores{}, err
		}
		st.users, st.chats, st.messages = users, chats, messages
		a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema, "apply_schema", a.cfg.DBApplySchema)
	} else {
		users := identity.NewMemoryStore(pw)
		st.users = users
		st.chats = chat.NewMemoryStore(users)
		st.messages = realtime.NewInMemoryStore(users)
		a.log.Info("db.disabled.inmemory_store")
	}

	if strings.TrimSpace(a.cfg.RedisURL) != "" {
		rdb, err := NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return stores{}, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb

		sessions, err := session.NewRedisStore(rdb, sessCfg, hasher)
		if err != nil {
			return stores{}, err
		}
		st.sessions = sessions
		a.log.Info("session.redis_store")
	} else {
		st.sessions = session.NewMemoryStore(sessCfg, hasher)
		a.log.Info("session.inmemory_store")
	}
	return st, nil
}

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.dbPool != nil,
		"redis_enabled", a.rdb != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	// Hijacked websocket connections are invisible to Shutdown; closing the
	// router ends them.
	a.router.Close()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.Close()

	a.log.Info("server.stopped")
	return err
}

// Close releases every backend. Safe to call on a partially built App.
func (a *App) Close() {
	if a.router != nil {
		a.router.Close()
	}
	if a.auth != nil {
		a.auth.Close()
	}
	if a.httpLimiter != nil {
		a.httpLimiter.Stop()
	}
	a.closeBackends()
}

func (a *App) closeBackends() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
