package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/httpjson"
)

// Handler wires HTTP auth endpoints to the identity and session stores.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions session.Store
	sessCfg  session.Config

	throttle loginThrottle
	now      func() time.Time
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessCfg session.Config, users identity.Store, sessions session.Store) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || sessions == nil {
		return nil, errors.New("auth: nil store")
	}
	if err := sessCfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		sessCfg:  sessCfg,
		throttle: newLoginThrottle(cfg),
		now:      time.Now,
	}, nil
}

// Register wires auth routes onto r.
func (h *Handler) Register(r *mux.Router) {
	if h == nil || r == nil {
		return
	}
	r.HandleFunc("/auth/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/user", h.handleUser).Methods(http.MethodGet)
}

// Close stops the login throttle sweepers.
func (h *Handler) Close() {
	if h != nil {
		h.throttle.stop()
	}
}

// RunSweeper drops idle throttle keys until Close.
func (h *Handler) RunSweeper(interval time.Duration) {
	go h.throttle.byIP.Run(interval)
	go h.throttle.byUser.Run(interval)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, err := h.users.CreateUser(r.Context(), identity.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Now:      h.now(),
	})
	if err != nil {
		var ce identity.ConflictError
		switch {
		case errors.As(err, &ce):
			httpjson.Error(w, http.StatusConflict, "conflict", conflictMessage(ce.Field))
		case identity.IsInvalidInput(err):
			httpjson.Error(w, http.StatusBadRequest, "invalid_request", invalidMessage(err))
		default:
			h.log.Error("auth.register.fail", "err", err)
			httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRegistered(u.ID, clientIP(r, h.cfg.TrustProxy))
	httpjson.Write(w, http.StatusCreated, registerResponse{
		Message: "Registration successful. You can now log in.",
		User:    toUserResponse(u),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)

	// Throttle before the password hash is computed.
	if retryAfter := h.throttle.check(ip, email); retryAfter > 0 {
		h.auditLoginRateLimited(email, ip, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.users.Authenticate(ctx, email, req.Password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.auditLoginFailed(email, ip, "invalid_credentials")
			httpjson.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	tok, err := h.sessions.Create(ctx, u.ID)
	if err != nil {
		h.log.Error("auth.login.session.fail", "err", err)
		if errors.Is(err, session.ErrUnavailable) {
			httpjson.Error(w, http.StatusServiceUnavailable, "session_unavailable", "please retry later")
			return
		}
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLoginSuccess(u.ID, ip)
	h.setSessionCookie(w, tok, h.now().Add(h.sessCfg.TTL))
	httpjson.Write(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, ok := session.TokenFromRequest(r, h.sessCfg.CookieName)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthenticated", "no session found")
		return
	}

	ctx := r.Context()
	userID, _ := h.sessions.Verify(ctx, tok)
	if err := h.sessions.Destroy(ctx, tok); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "logout failed")
		return
	}

	h.auditLogout(userID, clientIP(r, h.cfg.TrustProxy))
	h.expireSessionCookie(w)
	httpjson.Write(w, http.StatusOK, logoutResponse{Success: true})
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	p, err := session.Authenticate(r, h.sessions, h.sessCfg.CookieName)
	if err != nil {
		session.WriteAuthError(w, err)
		return
	}

	u, err := h.lookupUser(r.Context(), p.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpjson.Error(w, http.StatusUnauthorized, "unauthenticated", "invalid session")
			return
		}
		h.log.Error("auth.user.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpjson.Write(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

func (h *Handler) lookupUser(ctx context.Context, id string) (identity.User, error) {
	return h.users.GetUser(ctx, id)
}

// ---- helpers ----

func conflictMessage(field string) string {
	if field == "" {
		return "user already exists"
	}
	return field + " already taken"
}

// invalidMessage returns the validation detail of an identity OpError.
func invalidMessage(err error) string {
	var oe identity.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "invalid request"
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
