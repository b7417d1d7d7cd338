package realtime

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a keyset position: the page holds rows strictly older than
// (CreatedAt, ID) in (created_at, id) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

const maxCursorIDLen = 64

// EncodeCursor returns the opaque form handed to clients.
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + "." + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor. Any malformed input wraps ErrInvalidCursor.
func DecodeCursor(s string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: not base64url", ErrInvalidCursor)
	}
	ts, id, ok := strings.Cut(string(b), ".")
	if !ok || id == "" || len(id) > maxCursorIDLen {
		return Cursor{}, fmt.Errorf("%w: bad shape", ErrInvalidCursor)
	}
	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || micros < 0 {
		return Cursor{}, fmt.Errorf("%w: bad timestamp", ErrInvalidCursor)
	}
	return Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: id}, nil
}

// CursorOf is the position just after m, for fetching the rows before it.
func CursorOf(m StoredMessage) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// before reports whether (t, id) sorts strictly before c.
func (c Cursor) before(t time.Time, id string) bool {
	if !t.Equal(c.CreatedAt) {
		return t.Before(c.CreatedAt)
	}
	return id < c.ID
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultPageLimit
	case n > maxPageLimit:
		return maxPageLimit
	default:
		return n
	}
}

// pageQuery is a validated PageInput.
type pageQuery struct {
	chatID string
	limit  int
	cursor *Cursor
}

func (in PageInput) query() (pageQuery, error) {
	q := pageQuery{chatID: strings.TrimSpace(in.ChatID), limit: clampLimit(in.Limit)}
	if q.chatID == "" {
		return pageQuery{}, fmt.Errorf("%w: missing chat id", ErrInvalidMessage)
	}
	if strings.TrimSpace(in.Cursor) != "" {
		c, err := DecodeCursor(in.Cursor)
		if err != nil {
			return pageQuery{}, err
		}
		q.cursor = &c
	}
	return q, nil
}

// finishPage turns up to limit+1 newest-first rows into an oldest-first page.
func finishPage(newestFirst []StoredMessage, limit int) PageResult {
	hasMore := len(newestFirst) > limit
	if hasMore {
		newestFirst = newestFirst[:limit]
	}

	out := make([]StoredMessage, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}

	res := PageResult{Messages: out, HasMore: hasMore}
	if hasMore && len(out) > 0 {
		res.NextCursor = EncodeCursor(CursorOf(out[0]))
	}
	return res
}
