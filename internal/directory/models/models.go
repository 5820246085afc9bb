package models

import (
	"strings"
	"time"
)

// Bank prefixes and branch prefixes used by the identifier allocator.
const (
	BankIDPrefix   = "B"
	BranchIDPrefix = "BR"
)

// Bank is a directory entry for a bank.
//
// Invariants:
//   - ID has the form B_<n>
//   - Name is the natural key, compared trimmed and case-insensitively
//   - Banks are never deleted or merged
type Bank struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Branch is a directory entry for a bank branch.
//
// Invariants:
//   - ID has the form BR_<n>
//   - RoutingCode is the natural key; at most one branch per routing code
//   - BankID references exactly one bank
type Branch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RoutingCode string    `json:"routing_code"`
	BankID      string    `json:"bank_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NormalizeBankName trims and uppercases a bank name returned by the lookup
// service before it is matched or stored.
func NormalizeBankName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// LookupResult is what the external routing-code directory returns for a
// code it knows.
type LookupResult struct {
	BankName    string `json:"bank_name"`
	BranchName  string `json:"branch_name"`
	RoutingCode string `json:"routing_code"`
}
