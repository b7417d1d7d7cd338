package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

const maxNameChars = 100

// Notifier is told about every chat after it commits.
type Notifier interface {
	NotifyChatCreated(ctx context.Context, c Chat)
}

type Service struct {
	store  Store
	notify Notifier
	log    *slog.Logger
	now    func() time.Time
}

// NewService wires a Store with an optional Notifier.
func NewService(store Store, notify Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, notify: notify, log: log, now: time.Now}
}

// Create makes a chat owned by creatorID with the given participants. The
// creator is always included and duplicate ids collapse. A blank name means
// an unnamed chat.
func (s *Service) Create(ctx context.Context, creatorID string, name *string, participantIDs []string) (Chat, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return Chat{}, fmt.Errorf("%w: missing creator", ErrInvalidInput)
	}

	var cleanName *string
	if name != nil {
		if n := strings.TrimSpace(*name); n != "" {
			if utf8.RuneCountInString(n) > maxNameChars {
				return Chat{}, fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, maxNameChars)
			}
			cleanName = &n
		}
	}

	seen := map[string]struct{}{creatorID: {}}
	people := []string{creatorID}
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		people = append(people, id)
	}
	if len(people) > MaxParticipants {
		return Chat{}, fmt.Errorf("%w: more than %d participants", ErrInvalidInput, MaxParticipants)
	}

	c, err := s.store.Create(ctx, CreateInput{
		Name:           cleanName,
		ParticipantIDs: people,
		Now:            s.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return Chat{}, err
	}

	s.log.Info("chat.create", "chat_id", c.ID, "creator_id", creatorID, "participants", len(c.Participants))
	if s.notify != nil {
		s.notify.NotifyChatCreated(ctx, c)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, chatID string) (Chat, error) {
	return s.store.Get(ctx, chatID)
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Chat, error) {
	return s.store.ListForUser(ctx, userID)
}

// IsParticipant is the membership check used by the realtime layer and HTTP API.
func (s *Service) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return s.store.IsParticipant(ctx, chatID, userID)
}
