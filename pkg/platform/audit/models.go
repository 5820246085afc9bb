package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers changes to personnel banking data and its
	// verification state.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication and credential events.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers directory enrichment and other routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// ActorID is the user or record id of whoever performed the action.
	ActorID   string
	ActorRole string
	// Subject identifies the affected entity, e.g. "supervisor/SO_12" or "B_7".
	Subject   string
	Decision  string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventAccountSaved      AuditEvent = "account_saved"
	EventAccountVerified   AuditEvent = "account_verified"
	EventAccountUnverified AuditEvent = "account_unverified"

	EventBankCreated               AuditEvent = "bank_created"
	EventBranchCreated             AuditEvent = "branch_created"
	EventDirectoryEnrichmentFailed AuditEvent = "directory_enrichment_failed"
	EventSnapshotRefreshFailed     AuditEvent = "snapshot_refresh_failed"

	EventUserLogin      AuditEvent = "user_login"
	EventPersonnelLogin AuditEvent = "personnel_login"
	EventAuthFailed     AuditEvent = "auth_failed"
	EventPINChanged     AuditEvent = "pin_changed"
	EventAuthLockout    AuditEvent = "auth_lockout_triggered"

	EventUserUpdated     AuditEvent = "user_updated"
	EventPasswordChanged AuditEvent = "password_changed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountSaved:      CategoryCompliance,
	EventAccountVerified:   CategoryCompliance,
	EventAccountUnverified: CategoryCompliance,

	EventUserLogin:      CategorySecurity,
	EventPersonnelLogin: CategorySecurity,
	EventAuthFailed:     CategorySecurity,
	EventPINChanged:     CategorySecurity,
	EventAuthLockout:    CategorySecurity,

	EventUserUpdated:     CategorySecurity,
	EventPasswordChanged: CategorySecurity,

	EventBankCreated:               CategoryOperations,
	EventBranchCreated:             CategoryOperations,
	EventDirectoryEnrichmentFailed: CategoryOperations,
	EventSnapshotRefreshFailed:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what services depend on. Emission is best-effort: services log
// a failed Emit and carry on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
