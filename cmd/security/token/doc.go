// Package token generates opaque session tokens and derives the storage keys
// they are looked up by.
//
// Tokens are random UUIDv4 strings handed to clients. Servers never store the
// raw value: a Hasher maps it to a 64-char hex digest, HMAC-SHA256 when a key
// is configured and plain SHA-256 otherwise (dev mode).
package token
