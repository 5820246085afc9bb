// Package lockout throttles repeated failed logins. Failures are counted
// twice: per identifier and client IP with a tight budget, and per
// identifier alone with a looser one. Spending either budget inside the
// window locks the login for a while, so rotating the client address
// does not reset the count for an identifier.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dErrors "pollbank/pkg/domain-errors"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/requestcontext"
)

const (
	DefaultAttempts           = 5
	DefaultIdentifierAttempts = 20
	DefaultWindow             = 15 * time.Minute
	DefaultLockFor            = 15 * time.Minute
)

// anyClient stands in for the IP in identifier-wide keys.
const anyClient = "*"

// Store keeps failure counters and locks. Implementations must expire
// counters after window and locks after their deadline.
type Store interface {
	// RecordFailure increments the counter for key and returns the new count.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Lock(ctx context.Context, key string, until time.Time) error
	// LockedUntil returns the zero time when key is not locked.
	LockedUntil(ctx context.Context, key string) (time.Time, error)
	Clear(ctx context.Context, key string) error
}

type Service struct {
	store              Store
	attempts           int
	identifierAttempts int
	window             time.Duration
	lockFor            time.Duration

	logger  *slog.Logger
	auditor audit.Emitter
}

type Option func(*Service)

// WithLimits overrides the attempt budget. Non-positive values keep the default.
func WithLimits(attempts int, window, lockFor time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if window > 0 {
			s.window = window
		}
		if lockFor > 0 {
			s.lockFor = lockFor
		}
	}
}

// WithIdentifierLimit overrides the budget shared by every client for one
// identifier. Non-positive values keep the default.
func WithIdentifierLimit(attempts int) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.identifierAttempts = attempts
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = e
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	s := &Service{
		store:              store,
		attempts:           DefaultAttempts,
		identifierAttempts: DefaultIdentifierAttempts,
		window:             DefaultWindow,
		lockFor:            DefaultLockFor,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key scopes a lock to the login kind, the identifier and the client IP.
func Key(kind, identifier, ip string) string {
	return fmt.Sprintf("%s:%s:%s", kind, strings.ToLower(strings.TrimSpace(identifier)), ip)
}

type budget struct {
	key      string
	attempts int
}

// budgets returns the client-scoped budget first, then the identifier-wide one.
func (s *Service) budgets(ctx context.Context, kind, identifier string) [2]budget {
	return [2]budget{
		{key: Key(kind, identifier, requestcontext.ClientIP(ctx)), attempts: s.attempts},
		{key: Key(kind, identifier, anyClient), attempts: s.identifierAttempts},
	}
}

// Check returns a CodeRateLimited error while either budget for identifier
// is locked.
func (s *Service) Check(ctx context.Context, kind, identifier string) error {
	now := requestcontext.Now(ctx)
	var until time.Time
	for _, b := range s.budgets(ctx, kind, identifier) {
		u, err := s.store.LockedUntil(ctx, b.key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read login lockout")
		}
		if u.After(until) {
			until = u
		}
	}
	if until.After(now) {
		retry := int(until.Sub(now).Round(time.Minute).Minutes())
		return dErrors.New(dErrors.CodeRateLimited,
			fmt.Sprintf("too many failed attempts; try again in %d minute(s)", max(retry, 1)))
	}
	return nil
}

// RecordFailure counts one failed attempt against both budgets and locks
// whichever is spent.
func (s *Service) RecordFailure(ctx context.Context, kind, identifier string) error {
	for _, b := range s.budgets(ctx, kind, identifier) {
		if err := s.recordFailure(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, b budget) error {
	count, err := s.store.RecordFailure(ctx, b.key, s.window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
	}
	if count < b.attempts {
		return nil
	}
	until := requestcontext.Now(ctx).Add(s.lockFor)
	if err := s.store.Lock(ctx, b.key, until); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock login")
	}
	s.logger.WarnContext(ctx, "auth_lockout_triggered",
		"request_id", requestcontext.RequestID(ctx),
		"event", string(audit.EventAuthLockout),
		"log_type", "audit",
		"key", b.key,
		"locked_until", until,
	)
	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			Action:    string(audit.EventAuthLockout),
			Subject:   b.key,
			Reason:    fmt.Sprintf("%d failed attempts", count),
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	return nil
}

// Clear resets both budgets for identifier after a successful login.
func (s *Service) Clear(ctx context.Context, kind, identifier string) error {
	for _, b := range s.budgets(ctx, kind, identifier) {
		if err := s.store.Clear(ctx, b.key); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear login failures")
		}
	}
	return nil
}
