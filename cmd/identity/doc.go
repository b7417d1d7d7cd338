// Package identity owns huddle user accounts: registration, credential checks
// and the public profiles other users see.
//
// Two Store implementations exist: PostgresStore for deployments and
// MemoryStore for dev mode and tests. Both hash passwords with
// security/password and report failures through the sentinel kinds in
// kinds.go, wrapped in OpError, ConflictError or NotFoundError.
package identity
