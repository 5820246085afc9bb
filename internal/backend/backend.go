// Package backend defines the persistence boundary. Every write is a single
// call that either succeeds or fails; there are no multi-call transactions.
// After any mutation the service reloads everything through FetchAll.
package backend

//go:generate mockgen -source=backend.go -destination=mocks/mocks.go -package=mocks Backend

import (
	"context"

	"pollbank/internal/accounts/models"
	dirmodels "pollbank/internal/directory/models"
)

// Data is one full fetch of the backing store.
type Data struct {
	Accounts []models.PersonnelAccount
	Banks    []dirmodels.Bank
	Branches []dirmodels.Branch
	Users    []models.User
}

// Backend is the store of record.
//
// Errors: implementations wrap sentinel.ErrNotFound for unknown records and
// sentinel.ErrConflict for natural-key collisions. Error messages are shown
// to the user verbatim on an account write failure.
type Backend interface {
	CreateBank(ctx context.Context, bank dirmodels.Bank) error
	CreateBranch(ctx context.Context, branch dirmodels.Branch) error
	// SaveAccount writes the editable and banking fields of an existing
	// record. Verification state and PIN are left untouched.
	SaveAccount(ctx context.Context, account models.PersonnelAccount) error
	SetVerification(ctx context.Context, key models.Key, verified bool) error
	UpdatePIN(ctx context.Context, key models.Key, pinHash string) error
	// UpdateUser rewrites the profile, role and password hash of an existing
	// user. The login name is permanent and is not written.
	UpdateUser(ctx context.Context, user models.User) error
	FetchAll(ctx context.Context) (*Data, error)
}

// Seeder loads records and users provisioned outside this service.
type Seeder interface {
	Seed(ctx context.Context, data Data) error
}
