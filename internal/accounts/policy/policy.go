// Package policy centralizes who may see, edit and verify a personnel record.
// The lifecycle controller calls it once per operation; handlers never
// re-implement these checks.
package policy

import (
	"pollbank/internal/accounts/models"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
)

// Owns reports whether actor is responsible for record: the owning regional
// user, or the officer the record describes.
func Owns(record *models.PersonnelAccount, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RoleRegional:
		return actor.UserID != "" && record.OwningUserID == actor.UserID
	case domain.RolePersonnel:
		return actor.Category == record.Category && actor.RecordID == record.RecordID
	default:
		return false
	}
}

// CheckPINChanged rejects personnel still signed in with the default PIN.
// Until they change it they may not read or edit any record.
func CheckPINChanged(actor domain.Actor) error {
	if actor.Role == domain.RolePersonnel && actor.PINChangeRequired {
		return dErrors.New(dErrors.CodePermissionDenied, "change the default PIN before accessing records")
	}
	return nil
}

// CanView reports whether actor may read record.
func CanView(record *models.PersonnelAccount, actor domain.Actor) bool {
	if CheckPINChanged(actor) != nil {
		return false
	}
	return actor.Role.IsAdmin() || Owns(record, actor)
}

// CanEdit reports whether actor may save changes to record. Admins may edit
// any record in any state; everyone else only unverified records they own.
func CanEdit(record *models.PersonnelAccount, actor domain.Actor) bool {
	if actor.Role.IsAdmin() {
		return true
	}
	if CheckPINChanged(actor) != nil {
		return false
	}
	return !record.Verified && Owns(record, actor)
}

// CanTransitionVerification checks a verification change to target.
//
// Unverified to verified: admin or the owning regional user, and only once
// the banking fields are complete (CodeIncompleteRecord otherwise).
// Verified to unverified: admin only. A no-op transition is allowed for
// anyone who could have made it.
func CanTransitionVerification(record *models.PersonnelAccount, actor domain.Actor, target bool) error {
	if !actor.Role.IsAdmin() {
		if actor.Role != domain.RoleRegional || !Owns(record, actor) {
			return dErrors.New(dErrors.CodePermissionDenied, "not permitted to change verification of this record")
		}
		if record.Verified && !target {
			return dErrors.New(dErrors.CodePermissionDenied, "only an administrator can unverify a record")
		}
	}
	if target {
		return record.CanVerify()
	}
	return nil
}
