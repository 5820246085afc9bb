// Package models holds the personnel account record and the user accounts
// that own records.
package models

import (
	"strings"
	"time"

	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
)

// Key identifies a record. Record ids are only unique within a category.
type Key struct {
	Category domain.Category `json:"category"`
	RecordID string          `json:"record_id"`
}

func (k Key) String() string {
	return string(k.Category) + "/" + k.RecordID
}

// PersonnelAccount is the banking record of one election-duty officer. The
// three categories share this shape; UnitID is a part number for field and
// assistant officers and a sector number for supervisors.
//
// Invariants:
//   - Records are created out-of-band with empty banking fields and
//     Verified=false, and are never deleted here
//   - Mobile is unique across all categories (trimmed)
//   - (AccountNumber, RoutingCode) is unique across all categories
//   - BranchID, when set, references a branch whose bank is BankID
//   - A verified record is immutable to non-admin actors
type PersonnelAccount struct {
	Category      domain.Category `json:"category"`
	RecordID      string          `json:"record_id"`
	OwningUserID  string          `json:"owning_user_id"`
	AssemblyNo    string          `json:"assembly_no"`
	AssemblyName  string          `json:"assembly_name"`
	Tehsil        string          `json:"tehsil"`
	UnitID        string          `json:"unit_id"`
	PersonnelName string          `json:"personnel_name"`
	Gender        string          `json:"gender"`
	DepartmentID  string          `json:"department_id"`
	DesignationID string          `json:"designation_id"`
	Mobile        string          `json:"mobile"`
	EpicID        string          `json:"epic_id"`
	BankID        string          `json:"bank_id"`
	BranchID      string          `json:"branch_id"`
	RoutingCode   string          `json:"routing_code"`
	AccountNumber string          `json:"account_number"`
	ProofDocument string          `json:"proof_document"`
	Verified      bool            `json:"verified"`
	PINHash       string          `json:"-"`
	PINChanged    bool            `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (a *PersonnelAccount) Key() Key {
	return Key{Category: a.Category, RecordID: a.RecordID}
}

// Normalize trims free-text fields and canonicalizes the routing code.
func (a *PersonnelAccount) Normalize() {
	a.PersonnelName = strings.TrimSpace(a.PersonnelName)
	a.Mobile = strings.TrimSpace(a.Mobile)
	a.EpicID = strings.TrimSpace(a.EpicID)
	a.AccountNumber = strings.TrimSpace(a.AccountNumber)
	a.ProofDocument = strings.TrimSpace(a.ProofDocument)
	a.RoutingCode = domain.NormalizeRoutingCode(a.RoutingCode)
}

// MissingBankingFields lists the mandatory banking fields that are empty.
func (a *PersonnelAccount) MissingBankingFields() []string {
	var missing []string
	if strings.TrimSpace(a.AccountNumber) == "" {
		missing = append(missing, "account_number")
	}
	if strings.TrimSpace(a.RoutingCode) == "" {
		missing = append(missing, "routing_code")
	}
	if strings.TrimSpace(a.ProofDocument) == "" {
		missing = append(missing, "proof_document")
	}
	return missing
}

// CanVerify checks that the banking fields required for verification are set.
func (a *PersonnelAccount) CanVerify() error {
	if missing := a.MissingBankingFields(); len(missing) > 0 {
		return dErrors.New(dErrors.CodeIncompleteRecord,
			"cannot verify record: missing "+strings.Join(missing, ", "))
	}
	return nil
}

// ApplyVerification sets the verification flag. Authorization is the
// caller's concern.
func (a *PersonnelAccount) ApplyVerification(verified bool, now time.Time) {
	a.Verified = verified
	a.UpdatedAt = now
}

// ApplyEdit overlays the non-nil fields of e.
func (a *PersonnelAccount) ApplyEdit(e Edit) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.PersonnelName, e.PersonnelName)
	set(&a.Gender, e.Gender)
	set(&a.DepartmentID, e.DepartmentID)
	set(&a.DesignationID, e.DesignationID)
	set(&a.Mobile, e.Mobile)
	set(&a.EpicID, e.EpicID)
	set(&a.RoutingCode, e.RoutingCode)
	set(&a.AccountNumber, e.AccountNumber)
	set(&a.ProofDocument, e.ProofDocument)
}

// Edit carries the user-editable fields of a record. Nil means unchanged.
// Identity, ownership, assembly placement and verification are not editable
// through a save.
type Edit struct {
	PersonnelName *string `json:"personnel_name,omitempty"`
	Gender        *string `json:"gender,omitempty"`
	DepartmentID  *string `json:"department_id,omitempty"`
	DesignationID *string `json:"designation_id,omitempty"`
	Mobile        *string `json:"mobile,omitempty"`
	EpicID        *string `json:"epic_id,omitempty"`
	RoutingCode   *string `json:"routing_code,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	ProofDocument *string `json:"proof_document,omitempty"`
}

// User is an admin or regional account. Regional users own the records whose
// OwningUserID is their ID.
type User struct {
	ID           string      `json:"id"`
	UserName     string      `json:"user_name"`
	PasswordHash string      `json:"-"`
	Role         domain.Role `json:"role"`
	OfficerName  string      `json:"officer_name"`
	Designation  string      `json:"designation"`
	Mobile       string      `json:"mobile"`
}
