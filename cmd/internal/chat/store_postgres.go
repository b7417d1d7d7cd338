package chat

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
)

// PostgresStore implements Store over the chats and chat_participants tables.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type PostgresOption func(*PostgresStore) error

// WithSchema sets the schema holding the chat tables (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		clean, err := pgschema.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		s.schema = clean
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: pgschema.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string { return pgschema.Table(s.schema, name) }

// Create inserts the chat and all participants in one transaction.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Chat, error) {
	if len(in.ParticipantIDs) == 0 {
		return Chat{}, fmt.Errorf("%w: no participants", ErrInvalidInput)
	}
	id, err := ids.New(in.Now)
	if err != nil {
		return Chat{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Chat{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.table("chats")+` (id, name, created_at) VALUES ($1, $2, $3)`,
		id, in.Name, in.Now,
	); err != nil {
		return Chat{}, fmt.Errorf("chat.Create: insert chat: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.table("chat_participants")+` (chat_id, user_id, joined_at)
		 SELECT $1, u, $3 FROM unnest($2::text[]) AS u`,
		id, in.ParticipantIDs, in.Now,
	); err != nil {
		if isForeignKeyViolation(err) {
			return Chat{}, ErrUnknownUser
		}
		return Chat{}, fmt.Errorf("chat.Create: insert participants: %w", err)
	}

	byChat, err := s.participants(ctx, tx, []string{id})
	if err != nil {
		return Chat{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Chat{}, err
	}

	return Chat{ID: id, Name: in.Name, CreatedAt: in.Now, Participants: byChat[id]}, nil
}

func (s *PostgresStore) Get(ctx context.Context, chatID string) (Chat, error) {
	var c Chat
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM `+s.table("chats")+` WHERE id = $1`,
		strings.TrimSpace(chatID),
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("chat.Get: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()

	byChat, err := s.participants(ctx, s.pool, []string{c.ID})
	if err != nil {
		return Chat{}, err
	}
	c.Participants = byChat[c.ID]
	return c, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.created_at
		   FROM `+s.table("chats")+` c
		   JOIN `+s.table("chat_participants")+` p ON p.chat_id = c.id
		  WHERE p.user_id = $1
		  ORDER BY c.created_at DESC, c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chat.ListForUser: %w", err)
	}
	chats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Chat, error) {
		var c Chat
		err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
		c.CreatedAt = c.CreatedAt.UTC()
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("chat.ListForUser: %w", err)
	}
	if len(chats) == 0 {
		return []Chat{}, nil
	}

	chatIDs := make([]string, len(chats))
	for i, c := range chats {
		chatIDs[i] = c.ID
	}
	byChat, err := s.participants(ctx, s.pool, chatIDs)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		chats[i].Participants = byChat[chats[i].ID]
	}
	return chats, nil
}

func (s *PostgresStore) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	chatID = strings.TrimSpace(chatID)
	userID = strings.TrimSpace(userID)
	if chatID == "" || userID == "" {
		return false, nil
	}

	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table("chat_participants")+` WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("chat.IsParticipant: %w", err)
	}
	return ok, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// participants loads the participant lists of chatIDs with public profiles,
// ordered by join time.
func (s *PostgresStore) participants(ctx context.Context, q querier, chatIDs []string) (map[string][]Participant, error) {
	rows, err := q.Query(ctx,
		`SELECT p.chat_id, p.user_id, p.joined_at, u.username
		   FROM `+s.table("chat_participants")+` p
		   JOIN `+s.table("users")+` u ON u.id = p.user_id
		  WHERE p.chat_id = ANY($1)
		  ORDER BY p.joined_at, p.user_id`,
		chatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("chat: load participants: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Participant, len(chatIDs))
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.JoinedAt, &p.User.Username); err != nil {
			return nil, fmt.Errorf("chat: scan participant: %w", err)
		}
		p.User.ID = p.UserID
		p.JoinedAt = p.JoinedAt.UTC()
		out[p.ChatID] = append(out[p.ChatID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: load participants: %w", err)
	}
	return out, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
