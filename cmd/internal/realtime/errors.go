package realtime

import "errors"

var (
	// ErrInvalidMessage rejects blank, oversized or chat-less submissions.
	ErrInvalidMessage = errors.New("invalid message data")

	// ErrSessionExpired means the connection's session no longer resolves to its user.
	ErrSessionExpired = errors.New("session no longer valid")

	// ErrNotParticipant covers both non-members and unknown chats.
	ErrNotParticipant = errors.New("not a chat participant")

	// ErrPersistence wraps any message store failure.
	ErrPersistence = errors.New("message persistence failed")

	// ErrInvalidCursor rejects malformed pagination cursors.
	ErrInvalidCursor = errors.New("invalid cursor")

	ErrMessageNotFound = errors.New("message not found")

	ErrRouterClosed = errors.New("router closed")
)

// Ack error strings are a wire contract with existing clients.
const (
	ackInvalidMessage = "Invalid message data"
	ackAuthFailed     = "Authentication failed"
	ackNotParticipant = "Not a chat participant"
	ackSendFailed     = "Failed to send message"
)

func ackErrorText(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return ackInvalidMessage
	case errors.Is(err, ErrSessionExpired):
		return ackAuthFailed
	case errors.Is(err, ErrNotParticipant):
		return ackNotParticipant
	default:
		return ackSendFailed
	}
}
