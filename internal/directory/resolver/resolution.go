package resolver

import "pollbank/internal/directory/models"

// Kind discriminates the outcome of resolving a routing code.
type Kind string

const (
	// KindResolved: the code matched an existing branch; nothing to commit.
	KindResolved Kind = "resolved"
	// KindDiscovered: the external lookup found the code; PendingBranch (and
	// possibly PendingBank) must be committed before the ids are used.
	KindDiscovered Kind = "discovered"
	// KindUnresolved: the code is well-formed but unknown or the lookup
	// failed. The record may still be saved without bank and branch.
	KindUnresolved Kind = "unresolved"
	// KindInvalid: the code is malformed. No lookup was attempted.
	KindInvalid Kind = "invalid"
)

// Resolution is the advisory result of resolving a routing code. Staged
// entities exist only inside the save that produced them.
type Resolution struct {
	Kind        Kind   `json:"kind"`
	RoutingCode string `json:"routing_code"`
	BankID      string `json:"bank_id,omitempty"`
	BranchID    string `json:"branch_id,omitempty"`

	// PendingBank is set for KindDiscovered when no bank matched by name. A
	// save whose branch write failed reports KindUnresolved and keeps the
	// bank here if it was written.
	PendingBank *models.Bank `json:"pending_bank,omitempty"`
	// PendingBranch is always set for KindDiscovered.
	PendingBranch *models.Branch `json:"pending_branch,omitempty"`

	// Reason explains an unresolved outcome for the caller's feedback.
	Reason string `json:"reason,omitempty"`
}

// HasBinding reports whether the resolution carries bank and branch ids.
func (r Resolution) HasBinding() bool {
	return r.Kind == KindResolved || r.Kind == KindDiscovered
}

// NeedsCommit reports whether staged entities must be persisted first.
func (r Resolution) NeedsCommit() bool {
	return r.PendingBank != nil || r.PendingBranch != nil
}
