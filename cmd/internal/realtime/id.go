package realtime

import (
	"time"

	"huddle/cmd/identity/ids"
)

// NewConnID returns a ULID identifying one websocket connection.
func NewConnID(now time.Time) (string, error) {
	return ids.New(now)
}

// NewEnvelopeID returns a ULID for server-originated envelopes.
func NewEnvelopeID(now time.Time) string {
	id, err := ids.New(now)
	if err != nil {
		return ""
	}
	return id
}

// NewMessageID returns the ULID primary key of a persisted message.
func NewMessageID(now time.Time) (string, error) {
	return ids.New(now)
}
