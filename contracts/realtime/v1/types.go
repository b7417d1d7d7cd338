package v1

import "time"

// ---- Client payloads ----

// JoinRoomPayload requests a subscription to a chat room.
type JoinRoomPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload submits a new message into a chat.
type SendMessagePayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// ---- Server payloads ----

// UserPayload is the public profile of a user.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MessagePayload is a persisted message as seen by clients.
type MessagePayload struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	UserID    string      `json:"userId"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	User      UserPayload `json:"user"`
}

// ParticipantPayload is a chat membership record.
type ParticipantPayload struct {
	UserID   string       `json:"userId"`
	ChatID   string       `json:"chatId"`
	JoinedAt time.Time    `json:"joinedAt"`
	User     *UserPayload `json:"user,omitempty"`
}

// ChatPayload is a chat with its participants.
type ChatPayload struct {
	ID           string               `json:"id"`
	Name         *string              `json:"name"`
	CreatedAt    time.Time            `json:"createdAt"`
	Participants []ParticipantPayload `json:"participants"`
}

// AckPayload answers a send_message request. Exactly one of Error or
// (Success, Message) is set.
type AckPayload struct {
	Success bool            `json:"success,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---- HTTP payloads ----

// MessagePage is the body of GET /chats/{chatId}/messages.
// Messages are ordered oldest-first.
type MessagePage struct {
	Messages   []MessagePayload `json:"messages"`
	NextCursor *string          `json:"nextCursor"`
	HasMore    bool             `json:"hasMore"`
}
