package handler

import (
	"strings"

	"pollbank/internal/accounts/models"
	dErrors "pollbank/pkg/domain-errors"
)

// maxFieldLength caps every free-text field, in bytes.
const maxFieldLength = 256

// SaveRequest is the body of PUT /accounts/{category}/{id}. Omitted fields
// are left unchanged.
type SaveRequest struct {
	PersonnelName *string `json:"personnel_name"`
	Gender        *string `json:"gender"`
	DepartmentID  *string `json:"department_id"`
	DesignationID *string `json:"designation_id"`
	Mobile        *string `json:"mobile"`
	EpicID        *string `json:"epic_id"`
	RoutingCode   *string `json:"routing_code"`
	AccountNumber *string `json:"account_number"`
	ProofDocument *string `json:"proof_document"`
}

func (r *SaveRequest) Validate() error {
	// Checked in body order so the first offending field is reported.
	fields := []struct {
		name  string
		value *string
	}{
		{"personnel_name", r.PersonnelName},
		{"gender", r.Gender},
		{"department_id", r.DepartmentID},
		{"designation_id", r.DesignationID},
		{"mobile", r.Mobile},
		{"epic_id", r.EpicID},
		{"routing_code", r.RoutingCode},
		{"account_number", r.AccountNumber},
		{"proof_document", r.ProofDocument},
	}
	for _, f := range fields {
		if f.value != nil && len(*f.value) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, f.name+" is too long")
		}
	}
	if r.Mobile != nil {
		for _, c := range strings.TrimSpace(*r.Mobile) {
			if c < '0' || c > '9' {
				return dErrors.New(dErrors.CodeValidation, "mobile must contain digits only")
			}
		}
	}
	return nil
}

func (r *SaveRequest) Edit() models.Edit {
	return models.Edit{
		PersonnelName: r.PersonnelName,
		Gender:        r.Gender,
		DepartmentID:  r.DepartmentID,
		DesignationID: r.DesignationID,
		Mobile:        r.Mobile,
		EpicID:        r.EpicID,
		RoutingCode:   r.RoutingCode,
		AccountNumber: r.AccountNumber,
		ProofDocument: r.ProofDocument,
	}
}

// VerificationRequest is the body of POST .../verification.
type VerificationRequest struct {
	Verified string `json:"verified"`

	target bool
}

func (r *VerificationRequest) Validate() error {
	switch strings.ToLower(strings.TrimSpace(r.Verified)) {
	case "yes":
		r.target = true
	case "no":
		r.target = false
	default:
		return dErrors.New(dErrors.CodeValidation, `verified must be "yes" or "no"`)
	}
	return nil
}
