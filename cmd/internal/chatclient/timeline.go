package chatclient

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	v1 "huddle/contracts/realtime/v1"
)

// State is the Timeline's fetch state.
type State int

const (
	StateInitialLoading State = iota
	StateIdle
	StateLoadingMore
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitialLoading:
		return "initial-loading"
	case StateIdle:
		return "idle"
	case StateLoadingMore:
		return "loading-more"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrStale is returned by a fetch whose Timeline was remounted meanwhile.
// Its result has been discarded.
var ErrStale = errors.New("chatclient: result superseded by remount")

// Page is one history page, oldest-first. NextCursor is empty unless HasMore.
type Page struct {
	Messages   []v1.MessagePayload
	NextCursor string
	HasMore    bool
}

// PageFetcher loads history pages. An empty cursor means the newest page.
type PageFetcher interface {
	FetchPage(ctx context.Context, chatID, cursor string, limit int) (Page, error)
}

// Timeline is the merged, ordered view of one chat. The list is always sorted
// ascending by (createdAt, id) and holds each id at most once.
//
// Fetches run without the lock held, so OnLive is never blocked by an
// in-flight page load. A generation counter drops results of fetches that
// started before the latest Mount.
type Timeline struct {
	fetch PageFetcher
	limit int

	mu      sync.Mutex
	gen     uint64
	chatID  string
	state   State
	err     error
	msgs    []v1.MessagePayload
	seen    map[string]struct{}
	cursor  string
	hasMore bool
	loaded  bool
}

// NewTimeline binds a fetcher. limit is passed to every FetchPage; zero lets
// the server choose.
func NewTimeline(fetch PageFetcher, limit int) *Timeline {
	return &Timeline{
		fetch: fetch,
		limit: limit,
		state: StateInitialLoading,
		seen:  make(map[string]struct{}),
	}
}

// Mount resets the timeline to chatID and loads its newest page.
func (t *Timeline) Mount(ctx context.Context, chatID string) error {
	chatID = strings.TrimSpace(chatID)

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.chatID = chatID
	t.state = StateInitialLoading
	t.err = nil
	t.msgs = nil
	t.seen = make(map[string]struct{})
	t.cursor = ""
	t.hasMore = false
	t.loaded = false
	t.mu.Unlock()

	page, err := t.fetch.FetchPage(ctx, chatID, "", t.limit)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return ErrStale
	}
	if err != nil {
		t.state = StateError
		t.err = err
		return err
	}
	t.mergeLocked(page.Messages)
	t.cursor = page.NextCursor
	t.hasMore = page.HasMore && page.NextCursor != ""
	t.loaded = true
	t.state = StateIdle
	return nil
}

// LoadMore fetches the next older page. It is a no-op unless the timeline is
// idle and the server reported more history.
func (t *Timeline) LoadMore(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle || !t.hasMore {
		t.mu.Unlock()
		return nil
	}
	gen := t.gen
	chatID, cursor := t.chatID, t.cursor
	t.state = StateLoadingMore
	t.mu.Unlock()

	page, err := t.fetch.FetchPage(ctx, chatID, cursor, t.limit)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return ErrStale
	}
	if err != nil {
		t.state = StateError
		t.err = err
		return err
	}
	t.mergeLocked(page.Messages)
	t.cursor = page.NextCursor
	t.hasMore = page.HasMore && page.NextCursor != ""
	t.state = StateIdle
	return nil
}

// Retry recovers from StateError: a failed first load is mounted again, a
// failed LoadMore is repeated from the same cursor.
func (t *Timeline) Retry(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateError {
		t.mu.Unlock()
		return nil
	}
	chatID := t.chatID
	firstLoad := !t.loaded
	if !firstLoad {
		t.state = StateIdle
		t.err = nil
	}
	t.mu.Unlock()

	if firstLoad {
		return t.Mount(ctx, chatID)
	}
	return t.LoadMore(ctx)
}

// OnLive merges one pushed message. Messages for another chat and ids
// already present are ignored. It reports whether the list changed.
func (t *Timeline) OnLive(m v1.MessagePayload) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.ChatID != t.chatID || m.ID == "" {
		return false
	}
	return t.insertLocked(m)
}

func (t *Timeline) mergeLocked(batch []v1.MessagePayload) {
	for _, m := range batch {
		if m.ID == "" {
			continue
		}
		t.insertLocked(m)
	}
}

func (t *Timeline) insertLocked(m v1.MessagePayload) bool {
	if _, dup := t.seen[m.ID]; dup {
		return false
	}
	t.seen[m.ID] = struct{}{}

	// Live messages almost always belong at the end.
	if n := len(t.msgs); n == 0 || compareMessages(t.msgs[n-1], m) < 0 {
		t.msgs = append(t.msgs, m)
		return true
	}
	i, _ := slices.BinarySearchFunc(t.msgs, m, compareMessages)
	t.msgs = slices.Insert(t.msgs, i, m)
	return true
}

func compareMessages(a, b v1.MessagePayload) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Messages returns a copy of the list, oldest first.
func (t *Timeline) Messages() []v1.MessagePayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.msgs)
}

func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err is the error that moved the timeline to StateError.
func (t *Timeline) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

func (t *Timeline) ChatID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chatID
}
