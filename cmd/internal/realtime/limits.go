package realtime

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 64 << 10

	// Max message content length (runes).
	maxMessageChars = 4000

	// Page size bounds for history reads.
	defaultPageLimit = 50
	maxPageLimit     = 100
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound events per window.
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	// Upper bound for persisting and broadcasting one submission.
	submitTimeout = 10 * time.Second
)
