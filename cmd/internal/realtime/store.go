package realtime

import (
	"context"
	"time"

	"huddle/cmd/identity"
	v1 "huddle/contracts/realtime/v1"
)

// StoredMessage is a persisted, immutable chat message with its author's
// public profile.
type StoredMessage struct {
	ID        string
	ChatID    string
	UserID    string
	Content   string
	CreatedAt time.Time
	Author    identity.PublicUser
}

func (m StoredMessage) Payload() v1.MessagePayload {
	return v1.MessagePayload{
		ID:        m.ID,
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		User:      v1.UserPayload{ID: m.Author.ID, Username: m.Author.Username},
	}
}

// AppendInput is a validated submission. ID and CreatedAt are server-assigned.
type AppendInput struct {
	ID        string
	ChatID    string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// PageInput requests one history page. Limit is clamped to [1, 100] with 0
// meaning 50. An empty Cursor starts from the newest message.
type PageInput struct {
	ChatID string
	Limit  int
	Cursor string
}

// PageResult holds messages oldest-first. NextCursor is set only when HasMore.
type PageResult struct {
	Messages   []StoredMessage
	NextCursor string
	HasMore    bool
}

// MessageStore persists and pages messages.
//
// Pages are keyset-ordered by (created_at, id): a message appended while a
// client walks older pages can never shift or duplicate rows across pages.
type MessageStore interface {
	// Append stores one message and returns it with its author profile. It
	// either persists and returns the full row or fails with nothing stored.
	Append(ctx context.Context, in AppendInput) (StoredMessage, error)
	// Get loads one message with its author profile.
	Get(ctx context.Context, chatID, id string) (StoredMessage, error)
	Page(ctx context.Context, in PageInput) (PageResult, error)
}

// AuthorDirectory resolves author profiles for the in-memory store.
type AuthorDirectory interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}
