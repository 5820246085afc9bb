// Package service authenticates admin and regional users by password and
// personnel by mobile number and PIN, and issues access tokens.
package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"pollbank/internal/accounts/models"
	"pollbank/internal/auth/metrics"
	"pollbank/internal/auth/secrets"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/requestcontext"
)

// MinPINLength is the shortest PIN personnel may choose.
const MinPINLength = 4

// Directory is the read side the service authenticates against.
type Directory interface {
	UserByName(ctx context.Context, name string) (*models.User, error)
	AccountByMobile(ctx context.Context, mobile string) (*models.PersonnelAccount, error)
	Account(ctx context.Context, key models.Key) (*models.PersonnelAccount, error)
	Refresh(ctx context.Context) error
}

// PINStore persists PIN hashes.
type PINStore interface {
	UpdatePIN(ctx context.Context, key models.Key, pinHash string) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(actor domain.Actor, expiresIn time.Duration) (string, time.Time, error)
}

// Lockout throttles repeated login failures per identifier. kind separates
// user names from personnel mobiles.
type Lockout interface {
	Check(ctx context.Context, kind, identifier string) error
	RecordFailure(ctx context.Context, kind, identifier string) error
	Clear(ctx context.Context, kind, identifier string) error
}

// LoginResult is returned by both login flows.
type LoginResult struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Role        domain.Role     `json:"role"`
	UserID      string          `json:"user_id,omitempty"`
	Category    domain.Category `json:"category,omitempty"`
	RecordID    string          `json:"record_id,omitempty"`
	DisplayName string          `json:"display_name"`
	// PINChangeRequired is set while personnel still use the default PIN.
	PINChangeRequired bool `json:"pin_change_required,omitempty"`
}

type Service struct {
	directory  Directory
	pins       PINStore
	tokens     TokenIssuer
	tokenTTL   time.Duration
	defaultPIN string

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter
	lockout Lockout
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = e
	}
}

func WithLockout(l Lockout) Option {
	return func(s *Service) {
		s.lockout = l
	}
}

func New(directory Directory, pins PINStore, tokens TokenIssuer, tokenTTL time.Duration, defaultPIN string, opts ...Option) *Service {
	s := &Service{
		directory:  directory,
		pins:       pins,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
		defaultPIN: defaultPIN,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reasonLockedOut marks failures that must not extend the lockout.
const reasonLockedOut = "locked out"

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// Login authenticates an admin or regional user by name and password.
func (s *Service) Login(ctx context.Context, userName, password string) (*LoginResult, error) {
	if err := s.checkLockout(ctx, "user", userName); err != nil {
		return nil, err
	}
	user, err := s.directory.UserByName(ctx, userName)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.failed(ctx, "user", userName, "unknown user")
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if user.Role == domain.RolePersonnel || user.PasswordHash == "" {
		s.failed(ctx, "user", userName, "no password login")
		return nil, errInvalidCredentials
	}
	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		s.failed(ctx, "user", userName, "wrong password")
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	s.clearLockout(ctx, "user", userName)
	actor := domain.Actor{UserID: user.ID, Role: user.Role}
	res, err := s.issue(actor)
	if err != nil {
		return nil, err
	}
	res.DisplayName = user.OfficerName
	if res.DisplayName == "" {
		res.DisplayName = user.UserName
	}
	s.succeeded(ctx, "user", actor, audit.EventUserLogin)
	return res, nil
}

// PersonnelLogin authenticates an officer by the mobile number on their
// record and their PIN. Until the PIN is changed the default PIN applies.
func (s *Service) PersonnelLogin(ctx context.Context, mobile, pin string) (*LoginResult, error) {
	if err := s.checkLockout(ctx, "personnel", mobile); err != nil {
		return nil, err
	}
	account, err := s.directory.AccountByMobile(ctx, mobile)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.failed(ctx, "personnel", mobile, "unknown mobile")
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := s.checkPIN(account, pin); err != nil {
		s.failed(ctx, "personnel", mobile, "wrong pin")
		return nil, err
	}
	s.clearLockout(ctx, "personnel", mobile)

	actor := domain.Actor{
		UserID:            account.Key().String(),
		Role:              domain.RolePersonnel,
		Category:          account.Category,
		RecordID:          account.RecordID,
		PINChangeRequired: !account.PINChanged || account.PINHash == "",
	}
	res, err := s.issue(actor)
	if err != nil {
		return nil, err
	}
	res.DisplayName = account.PersonnelName
	s.succeeded(ctx, "personnel", actor, audit.EventPersonnelLogin)
	return res, nil
}

// ChangePIN replaces the PIN of the personnel actor. The new PIN must be at
// least MinPINLength digits and differ from the default PIN. The returned
// token no longer carries the PIN change requirement, so callers swap it in
// for the one issued at login.
func (s *Service) ChangePIN(ctx context.Context, actor domain.Actor, currentPIN, newPIN string) (*LoginResult, error) {
	if actor.Role != domain.RolePersonnel {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "only personnel have a PIN")
	}
	key := models.Key{Category: actor.Category, RecordID: actor.RecordID}
	account, err := s.directory.Account(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.checkPIN(account, currentPIN); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "current PIN is incorrect")
	}

	newPIN = strings.TrimSpace(newPIN)
	if err := s.validatePIN(newPIN); err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(newPIN)
	if err != nil {
		return nil, err
	}
	if err := s.pins.UpdatePIN(ctx, key, hash); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceFailure, "failed to update PIN")
	}
	if err := s.directory.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "snapshot refresh after PIN change failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementPINChange()
	}
	s.emit(ctx, audit.Event{
		Action:    string(audit.EventPINChanged),
		ActorID:   actor.UserID,
		ActorRole: actor.Role.String(),
		Subject:   key.String(),
	})

	actor.PINChangeRequired = false
	res, err := s.issue(actor)
	if err != nil {
		return nil, err
	}
	res.DisplayName = account.PersonnelName
	return res, nil
}

func (s *Service) validatePIN(pin string) error {
	if len(pin) < MinPINLength {
		return dErrors.New(dErrors.CodeValidation, "PIN must be at least 4 digits")
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return dErrors.New(dErrors.CodeValidation, "PIN must contain digits only")
		}
	}
	if pin == s.defaultPIN {
		return dErrors.New(dErrors.CodeValidation, "PIN must differ from the default PIN")
	}
	return nil
}

func (s *Service) checkPIN(account *models.PersonnelAccount, pin string) error {
	pin = strings.TrimSpace(pin)
	if !account.PINChanged || account.PINHash == "" {
		if s.defaultPIN == "" || subtle.ConstantTimeCompare([]byte(pin), []byte(s.defaultPIN)) != 1 {
			return errInvalidCredentials
		}
		return nil
	}
	if err := secrets.Verify(pin, account.PINHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return errInvalidCredentials
		}
		return err
	}
	return nil
}

func (s *Service) issue(actor domain.Actor) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.GenerateAccessToken(actor, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Role:        actor.Role,
		UserID:      actor.UserID,
		Category:    actor.Category,
		RecordID:    actor.RecordID,

		PINChangeRequired: actor.PINChangeRequired,
	}, nil
}

func (s *Service) checkLockout(ctx context.Context, kind, identifier string) error {
	if s.lockout == nil {
		return nil
	}
	if err := s.lockout.Check(ctx, kind, identifier); err != nil {
		if dErrors.HasCode(err, dErrors.CodeRateLimited) {
			s.failed(ctx, kind, identifier, reasonLockedOut)
		}
		return err
	}
	return nil
}

func (s *Service) clearLockout(ctx context.Context, kind, identifier string) {
	if s.lockout == nil {
		return
	}
	if err := s.lockout.Clear(ctx, kind, identifier); err != nil {
		s.logger.WarnContext(ctx, "failed to clear login lockout",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) failed(ctx context.Context, kind, subject, reason string) {
	if s.lockout != nil && reason != reasonLockedOut {
		if err := s.lockout.RecordFailure(ctx, kind, subject); err != nil {
			s.logger.WarnContext(ctx, "failed to record login failure",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementLogin(kind, "failed")
	}
	s.logger.WarnContext(ctx, "login failed",
		"request_id", requestcontext.RequestID(ctx),
		"kind", kind,
		"reason", reason,
	)
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventAuthFailed),
		Subject: subject,
		Reason:  reason,
	})
}

func (s *Service) succeeded(ctx context.Context, kind string, actor domain.Actor, event audit.AuditEvent) {
	if s.metrics != nil {
		s.metrics.IncrementLogin(kind, "ok")
	}
	s.logger.InfoContext(ctx, "login succeeded",
		"request_id", requestcontext.RequestID(ctx),
		"kind", kind,
		"actor_id", actor.UserID,
		"role", actor.Role.String(),
	)
	s.emit(ctx, audit.Event{
		Action:    string(event),
		ActorID:   actor.UserID,
		ActorRole: actor.Role.String(),
		Subject:   actor.UserID,
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"event", event.Action,
			"error", err,
		)
	}
}
