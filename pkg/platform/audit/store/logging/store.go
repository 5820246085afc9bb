// Package logging writes audit events to the structured log, optionally
// forwarding them to another store.
package logging

import (
	"context"
	"log/slog"

	audit "pollbank/pkg/platform/audit"
)

// Store logs every event with log_type=audit before handing it to next.
type Store struct {
	logger *slog.Logger
	next   audit.Store
}

// New returns a logging store. next may be nil.
func New(logger *slog.Logger, next audit.Store) *Store {
	return &Store{logger: logger, next: next}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"category", string(event.Category),
	}
	for _, kv := range [][2]string{
		{"event_id", event.ID},
		{"actor_id", event.ActorID},
		{"actor_role", event.ActorRole},
		{"subject", event.Subject},
		{"decision", event.Decision},
		{"reason", event.Reason},
		{"request_id", event.RequestID},
	} {
		if kv[1] != "" {
			args = append(args, kv[0], kv[1])
		}
	}
	s.logger.InfoContext(ctx, event.Action, args...)

	if s.next == nil {
		return nil
	}
	return s.next.Append(ctx, event)
}

// ListByActor delegates to next when it supports listing.
func (s *Store) ListByActor(ctx context.Context, actorID string) ([]audit.Event, error) {
	lister, ok := s.next.(interface {
		ListByActor(ctx context.Context, actorID string) ([]audit.Event, error)
	})
	if !ok {
		return nil, nil
	}
	return lister.ListByActor(ctx, actorID)
}
