// Package chat owns chats and their participant lists, the single authority on
// who may read or write a chat's messages.
package chat

import (
	"context"
	"errors"
	"time"

	"huddle/cmd/identity"
	v1 "huddle/contracts/realtime/v1"
)

var (
	ErrNotFound     = errors.New("chat not found")
	ErrInvalidInput = errors.New("invalid chat input")
	// ErrUnknownUser means a requested participant does not exist.
	ErrUnknownUser = errors.New("unknown participant")
)

// MaxParticipants bounds a single chat's initial participant list.
const MaxParticipants = 256

// Participant links a user to a chat. (ChatID, UserID) is unique.
type Participant struct {
	ChatID   string
	UserID   string
	JoinedAt time.Time
	User     identity.PublicUser
}

type Chat struct {
	ID           string
	Name         *string
	CreatedAt    time.Time
	Participants []Participant
}

// IsDirect reports whether the chat is an unnamed two-person conversation.
func (c Chat) IsDirect() bool {
	return c.Name == nil && len(c.Participants) == 2
}

func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// DisplayName is the title viewerID sees: the chat name if set, the other
// participant's username for direct chats, otherwise the joined usernames.
func (c Chat) DisplayName(viewerID string) string {
	if c.Name != nil {
		return *c.Name
	}
	if c.IsDirect() {
		for _, p := range c.Participants {
			if p.UserID != viewerID {
				return p.User.Username
			}
		}
	}
	title := ""
	for _, p := range c.Participants {
		if p.UserID == viewerID {
			continue
		}
		if title != "" {
			title += ", "
		}
		title += p.User.Username
	}
	if title == "" {
		return "Untitled chat"
	}
	return title
}

// Payload renders the wire form used by new_chat and GET /chats.
func (c Chat) Payload() v1.ChatPayload {
	ps := make([]v1.ParticipantPayload, 0, len(c.Participants))
	for _, p := range c.Participants {
		u := v1.UserPayload{ID: p.User.ID, Username: p.User.Username}
		ps = append(ps, v1.ParticipantPayload{
			UserID:   p.UserID,
			ChatID:   p.ChatID,
			JoinedAt: p.JoinedAt,
			User:     &u,
		})
	}
	return v1.ChatPayload{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt, Participants: ps}
}

// CreateInput is a normalized chat creation request; see Service.Create.
type CreateInput struct {
	Name           *string
	ParticipantIDs []string
	Now            time.Time
}

// Store persists chats. Create must insert the chat and every participant
// atomically.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Chat, error)
	Get(ctx context.Context, chatID string) (Chat, error)
	// ListForUser returns userID's chats, newest first, with participants.
	ListForUser(ctx context.Context, userID string) ([]Chat, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}
