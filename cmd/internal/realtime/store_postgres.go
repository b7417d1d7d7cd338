package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle/cmd/internal/pgschema"
)

// PostgresStore is a MessageStore over the messages table.
//
// The pool is owned by the caller. Paging uses the
// (chat_id, created_at DESC, id DESC) index with a row-value predicate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		clean, err := pgschema.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("realtime: %w", err)
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
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	rows, err := s.pool.Query(ctx,
		`WITH ins AS (
		   INSERT INTO `+pgschema.Table(s.schema, "messages")+` (id, chat_id, user_id, content, created_at)
		   VALUES ($1, $2, $3, $4, $5)
		   RETURNING id, chat_id, user_id, content, created_at
		 )
		 SELECT ins.id, ins.chat_id, ins.user_id, ins.content, ins.created_at, u.username
		   FROM ins
		   JOIN `+pgschema.Table(s.schema, "users")+` u ON u.id = ins.user_id`,
		in.ID, in.ChatID, in.UserID, in.Content, in.CreatedAt,
	)
	if err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) selectSQL() string {
	return `SELECT m.id, m.chat_id, m.user_id, m.content, m.created_at, u.username
	          FROM ` + pgschema.Table(s.schema, "messages") + ` m
	          JOIN ` + pgschema.Table(s.schema, "users") + ` u ON u.id = m.user_id`
}

func (s *PostgresStore) Get(ctx context.Context, chatID, id string) (StoredMessage, error) {
	rows, err := s.pool.Query(ctx, s.selectSQL()+` WHERE m.chat_id = $1 AND m.id = $2`, chatID, id)
	if err != nil {
		return StoredMessage{}, err
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredMessage{}, ErrMessageNotFound
	}
	return m, err
}

func (s *PostgresStore) Page(ctx context.Context, in PageInput) (PageResult, error) {
	q, err := in.query()
	if err != nil {
		return PageResult{}, err
	}

	var rows pgx.Rows
	if q.cursor == nil {
		rows, err = s.pool.Query(ctx,
			s.selectSQL()+`
			 WHERE m.chat_id = $1
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $2`,
			q.chatID, q.limit+1,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			s.selectSQL()+`
			 WHERE m.chat_id = $1 AND (m.created_at, m.id) < ($2, $3)
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $4`,
			q.chatID, q.cursor.CreatedAt, q.cursor.ID, q.limit+1,
		)
	}
	if err != nil {
		return PageResult{}, err
	}

	newestFirst, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return PageResult{}, err
	}
	return finishPage(newestFirst, q.limit), nil
}

func scanMessage(row pgx.CollectableRow) (StoredMessage, error) {
	var m StoredMessage
	err := row.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Content, &m.CreatedAt, &m.Author.Username)
	m.Author.ID = m.UserID
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}
