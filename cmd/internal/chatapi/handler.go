package chatapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"huddle/cmd/identity"
	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/httpjson"
	"huddle/cmd/internal/realtime"
	v1 "huddle/contracts/realtime/v1"
)

// UserLister lists public profiles. identity.Store satisfies it.
type UserLister interface {
	ListPublic(ctx context.Context, excludeID string) ([]identity.PublicUser, error)
}

// Handler serves /chats and /users.
type Handler struct {
	log          *slog.Logger
	chats        *chat.Service
	users        UserLister
	messages     realtime.MessageStore
	sessions     session.Store
	cookieName   string
	maxBodyBytes int64
}

type Options struct {
	Chats      *chat.Service
	Users      UserLister
	Messages   realtime.MessageStore
	Sessions   session.Store
	CookieName string

	// MaxBodyBytes caps request bodies; zero means httpjson.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func NewHandler(log *slog.Logger, opts Options) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Chats == nil || opts.Users == nil || opts.Messages == nil || opts.Sessions == nil {
		return nil, errors.New("chatapi: missing dependency")
	}
	if strings.TrimSpace(opts.CookieName) == "" {
		return nil, errors.New("chatapi: empty cookie name")
	}
	return &Handler{
		log:          log,
		chats:        opts.Chats,
		users:        opts.Users,
		messages:     opts.Messages,
		sessions:     opts.Sessions,
		cookieName:   opts.CookieName,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Register wires the chat routes onto r behind session authentication.
func (h *Handler) Register(r *mux.Router) {
	if h == nil || r == nil {
		return
	}
	authed := r.NewRoute().Subrouter()
	authed.Use(session.Require(h.sessions, h.cookieName))

	authed.HandleFunc("/chats", h.handleListChats).Methods(http.MethodGet)
	authed.HandleFunc("/chats", h.handleCreateChat).Methods(http.MethodPost)
	authed.HandleFunc("/chats/create", h.handleCreateChat).Methods(http.MethodPost)
	authed.HandleFunc("/chats/{chatId}/messages", h.handleMessages).Methods(http.MethodGet)
	authed.HandleFunc("/users", h.handleListUsers).Methods(http.MethodGet)
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())

	list, err := h.chats.ListForUser(r.Context(), p.UserID)
	if err != nil {
		h.log.Error("chats.list.fail", "user_id", p.UserID, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "failed to fetch chats")
		return
	}

	out := chatsEnvelope{Chats: make([]v1.ChatPayload, 0, len(list))}
	for _, c := range list {
		out.Chats = append(out.Chats, c.Payload())
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())

	var req createChatRequest
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	c, err := h.chats.Create(r.Context(), p.UserID, req.Name, req.ParticipantIDs)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidInput):
			httpjson.Error(w, http.StatusBadRequest, "invalid_request", "invalid chat")
		case errors.Is(err, chat.ErrUnknownUser):
			httpjson.Error(w, http.StatusBadRequest, "unknown_participant", "unknown participant")
		default:
			h.log.Error("chats.create.fail", "user_id", p.UserID, "err", err)
			httpjson.Error(w, http.StatusInternalServerError, "server_error", "failed to create chat")
		}
		return
	}
	httpjson.Write(w, http.StatusCreated, chatEnvelope{Chat: c.Payload()})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	chatID := strings.TrimSpace(mux.Vars(r)["chatId"])
	if chatID == "" {
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", "chat id is required")
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
		if limit < 1 {
			limit = 1
		}
	}

	ok, err := h.chats.IsParticipant(r.Context(), chatID, p.UserID)
	if err != nil {
		h.log.Error("messages.membership.fail", "chat_id", chatID, "user_id", p.UserID, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}
	if !ok {
		httpjson.Error(w, http.StatusForbidden, "forbidden", "not authorized to view this chat")
		return
	}

	page, err := h.messages.Page(r.Context(), realtime.PageInput{
		ChatID: chatID,
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrInvalidCursor):
			httpjson.Error(w, http.StatusBadRequest, "invalid_cursor", "invalid cursor")
		case errors.Is(err, realtime.ErrInvalidMessage):
			httpjson.Error(w, http.StatusBadRequest, "invalid_request", "invalid request")
		default:
			h.log.Error("messages.page.fail", "chat_id", chatID, "err", err)
			httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal server error")
		}
		return
	}
	httpjson.Write(w, http.StatusOK, toMessagePage(page))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())

	users, err := h.users.ListPublic(r.Context(), p.UserID)
	if err != nil {
		h.log.Error("users.list.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "failed to fetch users")
		return
	}
	if users == nil {
		users = []identity.PublicUser{}
	}
	httpjson.Write(w, http.StatusOK, usersEnvelope{Users: users})
}

func toMessagePage(p realtime.PageResult) v1.MessagePage {
	out := v1.MessagePage{
		Messages: make([]v1.MessagePayload, 0, len(p.Messages)),
		HasMore:  p.HasMore,
	}
	for _, m := range p.Messages {
		out.Messages = append(out.Messages, m.Payload())
	}
	if p.HasMore && p.NextCursor != "" {
		c := p.NextCursor
		out.NextCursor = &c
	}
	return out
}
