package domain

import (
	"strings"

	dErrors "pollbank/pkg/domain-errors"
)

// Role is the authorization role of an actor.
type Role string

const (
	// RoleAdmin may edit any record in any state and is the only role that
	// may move a verified record back to unverified.
	RoleAdmin Role = "admin"
	// RoleRegional is a regional (tehsil) user who owns a subset of records.
	RoleRegional Role = "regional"
	// RolePersonnel is the officer a record describes.
	RolePersonnel Role = "personnel"
)

var validRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleRegional:  true,
	RolePersonnel: true,
}

// ParseRole constructs a Role from external input. The legacy user type
// "tehsil" maps to RoleRegional.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "tehsil" {
		return RoleRegional, nil
	}
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// Actor is the authenticated principal performing an operation.
//
// For admin and regional actors UserID is the user account id. For personnel
// actors Category and RecordID identify the record they may act on, and
// PINChangeRequired is set while they are still signed in with the default
// PIN.
type Actor struct {
	UserID            string
	Role              Role
	Category          Category
	RecordID          string
	PINChangeRequired bool
}

// IsZero reports whether no actor is present.
func (a Actor) IsZero() bool {
	return a.Role == ""
}
