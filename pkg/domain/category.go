package domain

import (
	"strings"

	dErrors "pollbank/pkg/domain-errors"
)

// Category is the personnel category a record belongs to. The three
// categories share one schema; they differ only in what the unit identifier
// means (part number for field and assistant officers, sector number for
// supervisors).
//
// Construct via ParseCategory at trust boundaries; direct casting bypasses
// validation.
type Category string

const (
	CategoryFieldOfficer     Category = "field_officer"
	CategoryAssistantOfficer Category = "assistant_officer"
	CategorySupervisor       Category = "supervisor"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFieldOfficer,
	CategoryAssistantOfficer,
	CategorySupervisor,
}

var validCategories = map[Category]bool{
	CategoryFieldOfficer:     true,
	CategoryAssistantOfficer: true,
	CategorySupervisor:       true,
}

// ParseCategory constructs a Category from external input. Matching is
// case-insensitive and ignores surrounding whitespace.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return c, nil
}

func (c Category) IsValid() bool {
	return validCategories[c]
}

func (c Category) String() string {
	return string(c)
}

// UnitLabel names the unit identifier for display in conflict messages.
func (c Category) UnitLabel() string {
	if c == CategorySupervisor {
		return "sector"
	}
	return "part"
}

// DisplayName is the human-readable category name.
func (c Category) DisplayName() string {
	switch c {
	case CategoryFieldOfficer:
		return "Field Officer"
	case CategoryAssistantOfficer:
		return "Assistant Officer"
	case CategorySupervisor:
		return "Supervisor"
	default:
		return string(c)
	}
}
