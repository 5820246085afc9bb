// Package service is the record lifecycle controller: it runs the save and
// verification pipelines against the snapshot and the backend.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pollbank/internal/accounts/metrics"
	"pollbank/internal/accounts/models"
	"pollbank/internal/accounts/policy"
	"pollbank/internal/accounts/validator"
	"pollbank/internal/backend"
	"pollbank/internal/directory/resolver"
	"pollbank/internal/directory/store"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/requestcontext"
)

const (
	stepCreateBank   = "create_bank"
	stepCreateBranch = "create_branch"
	stepSaveAccount  = "save_account"
)

// Snapshot is the cached view of the backend the controller reads from.
type Snapshot interface {
	Account(ctx context.Context, key models.Key) (*models.PersonnelAccount, error)
	Accounts(ctx context.Context) ([]models.PersonnelAccount, error)
	AccountsOwnedBy(ctx context.Context, userID string) ([]models.PersonnelAccount, error)
	Directory(ctx context.Context) (*store.Directory, error)
	Refresh(ctx context.Context) error
	Invalidate()
}

// Resolver maps routing codes to directory entries.
type Resolver interface {
	Resolve(ctx context.Context, code string, dir *store.Directory) (resolver.Resolution, error)
}

// EnrichmentFailure reports a directory write that failed during a save.
// The save itself still went through.
type EnrichmentFailure struct {
	Step    string `json:"step"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SaveOutcome is what a successful save reports back to the user.
type SaveOutcome struct {
	Account            models.PersonnelAccount `json:"account"`
	Resolution         resolver.Resolution     `json:"resolution"`
	EnrichmentFailures []EnrichmentFailure     `json:"enrichment_failures,omitempty"`
	// Stale is set when the post-save reload failed; Account then reflects
	// what was written rather than what the backend returned.
	Stale bool `json:"stale,omitempty"`
}

type Service struct {
	backend  backend.Backend
	snapshot Snapshot
	resolver Resolver

	// mu serializes mutations so identifier allocation always sees the
	// snapshot produced by the previous mutation.
	mu sync.Mutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter
	tracer  trace.Tracer
	now     func() time.Time
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

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(b backend.Backend, snapshot Snapshot, r Resolver, opts ...Option) *Service {
	s := &Service{
		backend:  b,
		snapshot: snapshot,
		resolver: r,
		logger:   slog.Default(),
		tracer:   otel.Tracer("pollbank/accounts"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the records actor may see, optionally narrowed to one
// category.
func (s *Service) List(ctx context.Context, actor domain.Actor, category domain.Category) ([]models.PersonnelAccount, error) {
	if err := policy.CheckPINChanged(actor); err != nil {
		return nil, err
	}
	var (
		records []models.PersonnelAccount
		err     error
	)
	switch actor.Role {
	case domain.RoleAdmin:
		records, err = s.snapshot.Accounts(ctx)
	case domain.RoleRegional:
		records, err = s.snapshot.AccountsOwnedBy(ctx, actor.UserID)
	case domain.RolePersonnel:
		var own *models.PersonnelAccount
		own, err = s.snapshot.Account(ctx, models.Key{Category: actor.Category, RecordID: actor.RecordID})
		if own != nil {
			records = []models.PersonnelAccount{*own}
		}
	default:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err != nil {
		return nil, err
	}
	if category == "" {
		return records, nil
	}
	filtered := records[:0]
	for _, r := range records {
		if r.Category == category {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Get returns one record if actor may see it.
func (s *Service) Get(ctx context.Context, actor domain.Actor, key models.Key) (*models.PersonnelAccount, error) {
	if err := policy.CheckPINChanged(actor); err != nil {
		return nil, err
	}
	record, err := s.snapshot.Account(ctx, key)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(record, actor) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "not permitted to view this record")
	}
	return record, nil
}

// Save runs the edit pipeline: permission, mandatory fields, routing-code
// format, uniqueness, resolution, then the ordered commit and a full reload.
// Every check before the commit is local and performs no writes.
func (s *Service) Save(ctx context.Context, actor domain.Actor, key models.Key, edit models.Edit) (*SaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "accounts.Save", trace.WithAttributes(
		attribute.String("record", key.String()),
		attribute.String("actor.role", actor.Role.String()),
	))
	defer span.End()

	outcome, err := s.save(ctx, actor, key, edit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.observeSave(start, string(dErrors.CodeOf(err)))
		s.logger.WarnContext(ctx, "account save rejected",
			"request_id", requestcontext.RequestID(ctx),
			"record", key.String(),
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("resolution", string(outcome.Resolution.Kind)))
	s.observeSave(start, "saved")
	return outcome, nil
}

func (s *Service) save(ctx context.Context, actor domain.Actor, key models.Key, edit models.Edit) (*SaveOutcome, error) {
	if err := policy.CheckPINChanged(actor); err != nil {
		return nil, err
	}
	current, err := s.snapshot.Account(ctx, key)
	if err != nil {
		return nil, err
	}
	if !policy.CanEdit(current, actor) {
		if current.Verified {
			return nil, dErrors.New(dErrors.CodePermissionDenied, "record is verified; only an administrator can edit it")
		}
		return nil, dErrors.New(dErrors.CodePermissionDenied, "not permitted to edit this record")
	}

	candidate := *current
	candidate.ApplyEdit(edit)
	candidate.Normalize()

	if missing := candidate.MissingBankingFields(); len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeMissingMandatoryField,
			"mandatory field(s) missing: "+strings.Join(missing, ", "))
	}
	if !domain.ValidRoutingCode(candidate.RoutingCode) {
		return nil, dErrors.New(dErrors.CodeInvalidRoutingCode, "routing code must be exactly 11 characters")
	}

	all, err := s.snapshot.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.CheckUnique(&candidate, all); err != nil {
		return nil, err
	}

	dir, err := s.snapshot.Directory(ctx)
	if err != nil {
		return nil, err
	}
	resolution, err := s.resolver.Resolve(ctx, candidate.RoutingCode, dir)
	if err != nil {
		return nil, err
	}

	branchCommitted := true
	var steps []Step
	if resolution.PendingBank != nil {
		bank := *resolution.PendingBank
		steps = append(steps, Step{Name: stepCreateBank, OnFailure: Ignore, Run: func(ctx context.Context) error {
			return s.backend.CreateBank(ctx, bank)
		}})
	}
	if resolution.PendingBranch != nil {
		branch := *resolution.PendingBranch
		steps = append(steps, Step{Name: stepCreateBranch, OnFailure: Ignore, Run: func(ctx context.Context) error {
			if err := s.backend.CreateBranch(ctx, branch); err != nil {
				branchCommitted = false
				return err
			}
			return nil
		}})
	}
	steps = append(steps, Step{Name: stepSaveAccount, OnFailure: Abort, Run: func(ctx context.Context) error {
		// Never point a record at a branch that was not written.
		if resolution.HasBinding() && branchCommitted {
			candidate.BankID, candidate.BranchID = resolution.BankID, resolution.BranchID
		} else {
			candidate.BankID, candidate.BranchID = "", ""
		}
		return s.backend.SaveAccount(ctx, candidate)
	}})

	failures, err := RunSteps(ctx, steps)
	if err != nil {
		// Directory entries may have been written before the abort.
		s.snapshot.Invalidate()
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceFailure, "failed to save record "+key.String())
	}

	outcome := &SaveOutcome{Account: candidate, Resolution: resolution}
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.Step] = true
		outcome.EnrichmentFailures = append(outcome.EnrichmentFailures, EnrichmentFailure{
			Step:    f.Step,
			Code:    string(dErrors.CodeDirectoryEnrichment),
			Message: f.Err.Error(),
		})
		s.logger.ErrorContext(ctx, "directory enrichment failed",
			"request_id", requestcontext.RequestID(ctx),
			"record", key.String(),
			"step", f.Step,
			"routing_code", resolution.RoutingCode,
			"error", f.Err,
		)
		if s.metrics != nil {
			s.metrics.IncrementEnrichmentFailure(f.Step)
		}
		s.emit(ctx, actor, audit.EventDirectoryEnrichmentFailed, resolution.RoutingCode, f.Step, f.Err.Error())
	}
	if resolution.PendingBank != nil && !failed[stepCreateBank] {
		s.emit(ctx, actor, audit.EventBankCreated, resolution.PendingBank.ID, resolution.PendingBank.Name, "")
	}
	if resolution.PendingBranch != nil && !failed[stepCreateBranch] {
		s.emit(ctx, actor, audit.EventBranchCreated, resolution.PendingBranch.ID, resolution.RoutingCode, "")
	}
	if !branchCommitted {
		outcome.Resolution = unbound(resolution, failed[stepCreateBank])
	}
	s.emit(ctx, actor, audit.EventAccountSaved, key.String(), string(outcome.Resolution.Kind), outcome.Resolution.Reason)

	if fresh, ok := s.reload(ctx, actor, key); ok {
		outcome.Account = *fresh
	} else {
		outcome.Stale = true
	}
	return outcome, nil
}

// unbound rewrites a resolution whose branch could not be written so that it
// matches the stored record, which carries no bank or branch.
func unbound(r resolver.Resolution, bankFailed bool) resolver.Resolution {
	out := resolver.Resolution{
		Kind:        resolver.KindUnresolved,
		RoutingCode: r.RoutingCode,
		Reason:      "branch for " + r.RoutingCode + " could not be created; saved without bank and branch",
	}
	if !bankFailed {
		out.PendingBank = r.PendingBank
	}
	return out
}

// SetVerification moves a record to verified or back to unverified.
func (s *Service) SetVerification(ctx context.Context, actor domain.Actor, key models.Key, verified bool) (*models.PersonnelAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "accounts.SetVerification", trace.WithAttributes(
		attribute.String("record", key.String()),
		attribute.Bool("verified", verified),
	))
	defer span.End()

	record, err := s.setVerification(ctx, actor, key, verified)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		if s.metrics != nil {
			s.metrics.IncrementVerification(verified, string(dErrors.CodeOf(err)))
		}
		s.logger.WarnContext(ctx, "verification change rejected",
			"request_id", requestcontext.RequestID(ctx),
			"record", key.String(),
			"verified", verified,
			"error", err,
		)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementVerification(verified, "ok")
	}
	return record, nil
}

func (s *Service) setVerification(ctx context.Context, actor domain.Actor, key models.Key, verified bool) (*models.PersonnelAccount, error) {
	current, err := s.snapshot.Account(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := policy.CanTransitionVerification(current, actor, verified); err != nil {
		return nil, err
	}
	if current.Verified == verified {
		return current, nil
	}

	if err := s.backend.SetVerification(ctx, key, verified); err != nil {
		s.snapshot.Invalidate()
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceFailure, "failed to update verification of "+key.String())
	}

	event := audit.EventAccountVerified
	if !verified {
		event = audit.EventAccountUnverified
	}
	s.emit(ctx, actor, event, key.String(), string(event), "")

	updated := *current
	updated.ApplyVerification(verified, s.now())
	if fresh, ok := s.reload(ctx, actor, key); ok {
		return fresh, nil
	}
	return &updated, nil
}

// reload refreshes the snapshot after a committed mutation. A failure is
// logged and leaves the snapshot invalid; the next read retries.
func (s *Service) reload(ctx context.Context, actor domain.Actor, key models.Key) (*models.PersonnelAccount, bool) {
	if err := s.snapshot.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "snapshot refresh after mutation failed",
			"request_id", requestcontext.RequestID(ctx),
			"record", key.String(),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementRefreshFailure()
		}
		s.emit(ctx, actor, audit.EventSnapshotRefreshFailed, key.String(), "", err.Error())
		return nil, false
	}
	fresh, err := s.snapshot.Account(ctx, key)
	if err != nil {
		return nil, false
	}
	return fresh, true
}

// Refresh forces a full reload, for the admin refresh endpoint.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshot.Refresh(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reload data")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, actor domain.Actor, event audit.AuditEvent, subject, decision, reason string) {
	if s.auditor == nil {
		return
	}
	actorID := actor.UserID
	if actorID == "" && actor.RecordID != "" {
		actorID = models.Key{Category: actor.Category, RecordID: actor.RecordID}.String()
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:    string(event),
		ActorID:   actorID,
		ActorRole: actor.Role.String(),
		Subject:   subject,
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"event", string(event),
			"error", err,
		)
	}
}

func (s *Service) observeSave(start time.Time, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveSave(start, outcome)
	}
}
