package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle/cmd/identity/ids"
	"huddle/cmd/internal/pgschema"
	"huddle/cmd/security/password"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller and is never closed here. Table names are
// quoted via pgx.Identifier; the schema name is validated up front.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	hasher PasswordHasher
	dummy  string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the schema holding the users tables (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		clean, err := pgschema.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		s.schema = clean
		return nil
	}
}

// WithPasswordHasher overrides the password hashing configuration.
func WithPasswordHasher(h PasswordHasher) PostgresOption {
	return func(s *PostgresStore) error {
		if h == nil {
			return fmt.Errorf("identity: nil password hasher")
		}
		s.hasher = h
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: pgschema.DefaultSchema,
		hasher: password.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	st.dummy, _ = st.hasher.Hash(dummyPassword)
	return st, nil
}

func (s *PostgresStore) table(name string) string { return pgschema.Table(s.schema, name) }

// CreateUser inserts the user and its credentials in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	p, err := prepareUser(op, s.hasher, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.New(p.now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("users")+` (id, username, username_norm, email, email_norm, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, p.username, p.usernameNorm, p.email, p.emailNorm, p.now,
	)
	if err != nil {
		if field, ok := classifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: insert user: %w", op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		id, p.hash, p.now,
	)
	if err != nil {
		return User{}, fmt.Errorf("%s: insert credentials: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return User{ID: id, Username: p.username, Email: p.email, CreatedAt: p.now}, nil
}

func (s *PostgresStore) Authenticate(ctx context.Context, email, pw string) (User, error) {
	const op = "identity.Authenticate"

	var (
		u    User
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.email, u.created_at, c.password_hash
		   FROM `+s.table("users")+` u
		   JOIN `+s.table("user_credentials")+` c ON c.user_id = u.id
		  WHERE u.email_norm = $1`,
		NormalizeEmail(email),
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		burnVerify(s.hasher, s.dummy, pw)
		return User{}, badCredentials(op)
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	match, err := s.hasher.Verify(hash, pw)
	if err != nil || !match {
		return User{}, badCredentials(op)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUser"

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM `+s.table("users")+` WHERE id = $1`,
		strings.TrimSpace(id),
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *PostgresStore) ListPublic(ctx context.Context, excludeID string) ([]PublicUser, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username FROM `+s.table("users")+`
		  WHERE id <> $1
		  ORDER BY username_norm, id`,
		excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("identity.ListPublic: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PublicUser, error) {
		var p PublicUser
		err := row.Scan(&p.ID, &p.Username)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("identity.ListPublic: %w", err)
	}
	return out, nil
}

func classifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch c := strings.ToLower(pgErr.ConstraintName); {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
