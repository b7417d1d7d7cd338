package chat

import (
	"testing"

	"huddle/cmd/identity"
	"huddle/cmd/internal/pgschema/pgtest"
	"huddle/cmd/security/password"
)

// Opt-in: requires HUDDLE_DATABASE_URL.

func TestPostgresStoreContract(t *testing.T) {
	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)

	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema), identity.WithPasswordHasher(cfg))
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("chat store: %v", err)
	}
	storeContract(t, users, s)
}
