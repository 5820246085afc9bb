// Package validator enforces the cross-category uniqueness rules on a
// candidate record before anything is written.
package validator

import (
	"fmt"
	"strings"

	"pollbank/internal/accounts/models"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
)

// Rule names the uniqueness rule a candidate broke.
type Rule string

const (
	RuleMobile  Rule = "mobile"
	RuleAccount Rule = "account_number_routing_code"
)

// Conflict identifies the existing record a candidate collides with, in
// enough detail for the user to find it.
type Conflict struct {
	Rule          Rule            `json:"rule"`
	Category      domain.Category `json:"category"`
	RecordID      string          `json:"record_id"`
	PersonnelName string          `json:"personnel_name"`
	AssemblyNo    string          `json:"assembly_no"`
	AssemblyName  string          `json:"assembly_name"`
	UnitLabel     string          `json:"unit_label"`
	UnitID        string          `json:"unit_id"`
}

// DuplicateError is returned when a candidate violates a uniqueness rule.
// It unwraps to a CodeDuplicateRecord domain error.
type DuplicateError struct {
	Conflict Conflict
	err      *dErrors.Error
}

func (e *DuplicateError) Error() string {
	return e.err.Error()
}

func (e *DuplicateError) Unwrap() error {
	return e.err
}

// ErrorDetails exposes the conflicting record to HTTP clients.
func (e *DuplicateError) ErrorDetails() any {
	return e.Conflict
}

func newDuplicate(rule Rule, existing *models.PersonnelAccount) *DuplicateError {
	c := Conflict{
		Rule:          rule,
		Category:      existing.Category,
		RecordID:      existing.RecordID,
		PersonnelName: existing.PersonnelName,
		AssemblyNo:    existing.AssemblyNo,
		AssemblyName:  existing.AssemblyName,
		UnitLabel:     existing.Category.UnitLabel(),
		UnitID:        existing.UnitID,
	}
	what := "mobile number"
	if rule == RuleAccount {
		what = "account number and routing code"
	}
	msg := fmt.Sprintf("%s already registered to %s %s (%s), assembly %s %s, %s %s",
		what, existing.Category.DisplayName(), existing.PersonnelName, existing.RecordID,
		existing.AssemblyNo, existing.AssemblyName, c.UnitLabel, existing.UnitID)
	return &DuplicateError{Conflict: c, err: dErrors.New(dErrors.CodeDuplicateRecord, msg)}
}

// CheckUnique compares candidate against every other record across all
// categories. The candidate itself, matched on category and record id, is
// skipped. The first violation found is returned.
func CheckUnique(candidate *models.PersonnelAccount, existing []models.PersonnelAccount) error {
	mobile := strings.TrimSpace(candidate.Mobile)
	account := strings.TrimSpace(candidate.AccountNumber)
	routing := candidate.RoutingCode

	for i := range existing {
		other := &existing[i]
		if other.Category == candidate.Category && other.RecordID == candidate.RecordID {
			continue
		}
		if mobile != "" && strings.TrimSpace(other.Mobile) == mobile {
			return newDuplicate(RuleMobile, other)
		}
		if account != "" && strings.TrimSpace(other.AccountNumber) == account &&
			domain.SameRoutingCode(other.RoutingCode, routing) {
			return newDuplicate(RuleAccount, other)
		}
	}
	return nil
}
