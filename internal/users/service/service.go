// Package service manages admin and regional user accounts. Administrators
// may edit any user; everyone else may edit only their own profile and
// password. Login names are permanent.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"pollbank/internal/accounts/models"
	"pollbank/internal/auth/secrets"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/platform/sentinel"
	"pollbank/pkg/requestcontext"
)

// MinPasswordLength is the shortest portal password accepted.
const MinPasswordLength = 8

// Snapshot is the cached read side users are served from.
type Snapshot interface {
	Users(ctx context.Context) ([]models.User, error)
	User(ctx context.Context, id string) (*models.User, error)
	Refresh(ctx context.Context) error
}

// Store persists user changes.
type Store interface {
	UpdateUser(ctx context.Context, user models.User) error
}

// Update is a partial edit; nil fields are left unchanged. CurrentPassword
// is required when actors change their own password.
type Update struct {
	OfficerName     *string
	Designation     *string
	Mobile          *string
	Role            *domain.Role
	Password        *string
	CurrentPassword string
}

type Service struct {
	snapshot Snapshot
	store    Store

	// mu serializes read-modify-write cycles on user rows.
	mu sync.Mutex

	logger  *slog.Logger
	auditor audit.Emitter
}

type Option func(*Service)

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

func New(snapshot Snapshot, store Store, opts ...Option) *Service {
	s := &Service{
		snapshot: snapshot,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every user whose officer name or login name contains query,
// case-insensitively. Only administrators may list users.
func (s *Service) List(ctx context.Context, actor domain.Actor, query string) ([]models.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "only administrators can list users")
	}
	users, err := s.snapshot.Users(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return users, nil
	}
	out := users[:0]
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.OfficerName), query) || strings.Contains(strings.ToLower(u.UserName), query) {
			out = append(out, u)
		}
	}
	return out, nil
}

// Get returns one user to an administrator or to that user.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (*models.User, error) {
	if err := checkAccess(actor, id); err != nil {
		return nil, err
	}
	return s.snapshot.User(ctx, id)
}

// Update applies upd to user id, writes it and reloads the snapshot.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, upd Update) (*models.User, error) {
	if err := checkAccess(actor, id); err != nil {
		return nil, err
	}
	self := actor.UserID == id
	if actor.Role != domain.RoleAdmin && (upd.Designation != nil || upd.Role != nil) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "only administrators can change designation or access level")
	}
	if upd.Role != nil {
		if *upd.Role != domain.RoleAdmin && *upd.Role != domain.RoleRegional {
			return nil, dErrors.New(dErrors.CodeValidation, "role must be admin or regional")
		}
		if self && *upd.Role != actor.Role {
			return nil, dErrors.New(dErrors.CodePermissionDenied, "administrators cannot change their own access level")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.snapshot.User(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	if err := apply(&next, upd); err != nil {
		return nil, err
	}

	passwordChanged := upd.Password != nil
	if passwordChanged {
		if self {
			if current.PasswordHash == "" {
				return nil, dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
			}
			if err := secrets.Verify(upd.CurrentPassword, current.PasswordHash); err != nil {
				if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					return nil, dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
				}
				return nil, err
			}
		}
		hash, err := secrets.Hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		next.PasswordHash = hash
	}

	if err := s.store.UpdateUser(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceFailure, "failed to update user "+id)
	}

	updated := &next
	if err := s.snapshot.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "snapshot refresh after user update failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", id,
			"error", err,
		)
	} else if reloaded, err := s.snapshot.User(ctx, id); err == nil {
		updated = reloaded
	}

	s.logger.InfoContext(ctx, "user updated",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", actor.UserID,
		"user_id", id,
		"password_changed", passwordChanged,
	)
	s.emit(ctx, actor, audit.EventUserUpdated, id)
	if passwordChanged {
		s.emit(ctx, actor, audit.EventPasswordChanged, id)
	}
	return updated, nil
}

func checkAccess(actor domain.Actor, id string) error {
	switch {
	case actor.Role == domain.RoleAdmin:
		return nil
	case actor.Role == domain.RoleRegional && actor.UserID == id:
		return nil
	default:
		return dErrors.New(dErrors.CodePermissionDenied, "you may only manage your own profile")
	}
}

func apply(u *models.User, upd Update) error {
	if upd.OfficerName != nil {
		name := strings.TrimSpace(*upd.OfficerName)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "officer_name cannot be empty")
		}
		u.OfficerName = name
	}
	if upd.Mobile != nil {
		mobile := strings.TrimSpace(*upd.Mobile)
		if mobile == "" {
			return dErrors.New(dErrors.CodeValidation, "mobile cannot be empty")
		}
		for _, c := range mobile {
			if c < '0' || c > '9' {
				return dErrors.New(dErrors.CodeValidation, "mobile must contain digits only")
			}
		}
		u.Mobile = mobile
	}
	if upd.Designation != nil {
		u.Designation = strings.TrimSpace(*upd.Designation)
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Password != nil && len(*upd.Password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, actor domain.Actor, event audit.AuditEvent, subject string) {
	if s.auditor == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    string(event),
		ActorID:   actor.UserID,
		ActorRole: actor.Role.String(),
		Subject:   subject,
		RequestID: requestID,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestID,
			"event", string(event),
			"error", err,
		)
	}
}
