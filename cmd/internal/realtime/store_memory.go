package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// InMemoryStore is the dev-mode MessageStore. Rows per chat are kept sorted
// by (created_at, id).
type InMemoryStore struct {
	authors AuthorDirectory

	mu    sync.RWMutex
	chats map[string][]StoredMessage
}

func NewInMemoryStore(authors AuthorDirectory) *InMemoryStore {
	return &InMemoryStore{
		authors: authors,
		chats:   make(map[string][]StoredMessage),
	}
}

func (s *InMemoryStore) Append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	if in.ID == "" || in.ChatID == "" || in.UserID == "" || in.Content == "" || in.CreatedAt.IsZero() {
		return StoredMessage{}, errors.New("realtime: incomplete append input")
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	m, err := s.withAuthor(ctx, StoredMessage{
		ID:        in.ID,
		ChatID:    in.ChatID,
		UserID:    in.UserID,
		Content:   in.Content,
		CreatedAt: in.CreatedAt,
	})
	if err != nil {
		return StoredMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.chats[in.ChatID]
	at := sort.Search(len(rows), func(i int) bool {
		return !CursorOf(rows[i]).before(m.CreatedAt, m.ID)
	})
	if at < len(rows) && rows[at].ID == m.ID {
		return StoredMessage{}, errors.New("realtime: duplicate message id")
	}
	rows = append(rows, StoredMessage{})
	copy(rows[at+1:], rows[at:])
	rows[at] = m
	s.chats[in.ChatID] = rows
	return m, nil
}

func (s *InMemoryStore) Get(ctx context.Context, chatID, id string) (StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	s.mu.RLock()
	var (
		m     StoredMessage
		found bool
	)
	rows := s.chats[chatID]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].ID == id {
			m, found = rows[i], true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return StoredMessage{}, ErrMessageNotFound
	}
	return s.withAuthor(ctx, m)
}

func (s *InMemoryStore) Page(ctx context.Context, in PageInput) (PageResult, error) {
	q, err := in.query()
	if err != nil {
		return PageResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}

	s.mu.RLock()
	rows := s.chats[q.chatID]
	end := len(rows)
	if q.cursor != nil {
		c := *q.cursor
		end = sort.Search(len(rows), func(i int) bool {
			return !c.before(rows[i].CreatedAt, rows[i].ID)
		})
	}
	start := end - (q.limit + 1)
	if start < 0 {
		start = 0
	}
	newestFirst := make([]StoredMessage, 0, end-start)
	for i := end - 1; i >= start; i-- {
		newestFirst = append(newestFirst, rows[i])
	}
	s.mu.RUnlock()

	for i := range newestFirst {
		if newestFirst[i], err = s.withAuthor(ctx, newestFirst[i]); err != nil {
			return PageResult{}, err
		}
	}
	return finishPage(newestFirst, q.limit), nil
}

func (s *InMemoryStore) withAuthor(ctx context.Context, m StoredMessage) (StoredMessage, error) {
	u, err := s.authors.GetUser(ctx, m.UserID)
	if err != nil {
		return StoredMessage{}, err
	}
	m.Author = u.Public()
	return m, nil
}
