// Package session maps opaque session tokens to user ids.
//
// A token is minted at login, handed to the client as the sessionId cookie and
// presented again on every HTTP request and websocket handshake. Stores keep
// only a hash of the token, under "session:<hash>", with a fixed TTL.
// RedisStore is the deployment store; MemoryStore serves dev mode and tests.
//
// Callers extract the presented token explicitly with TokenFromRequest and
// pass it to Verify; nothing here reads ambient request state.
package session
