// Package memory is an in-process Backend for tests and local development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pollbank/internal/accounts/models"
	"pollbank/internal/backend"
	dirmodels "pollbank/internal/directory/models"
	"pollbank/pkg/platform/sentinel"
)

// Backend keeps every collection in insertion order so FetchAll is stable.
type Backend struct {
	mu       sync.RWMutex
	accounts []models.PersonnelAccount
	banks    []dirmodels.Bank
	branches []dirmodels.Branch
	users    []models.User
	now      func() time.Time
}

type Option func(*Backend)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

func New(opts ...Option) *Backend {
	b := &Backend{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Seed loads records and users created out-of-band (bulk import). Existing
// entries with the same key are replaced.
func (b *Backend) Seed(_ context.Context, data backend.Data) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for _, a := range data.Accounts {
		if a.CreatedAt.IsZero() {
			a.CreatedAt, a.UpdatedAt = now, now
		}
		if i := b.accountIndex(a.Key()); i >= 0 {
			b.accounts[i] = a
			continue
		}
		b.accounts = append(b.accounts, a)
	}
	for _, u := range data.Users {
		replaced := false
		for i := range b.users {
			if b.users[i].ID == u.ID {
				b.users[i], replaced = u, true
			}
		}
		if !replaced {
			b.users = append(b.users, u)
		}
	}
	b.banks = append(b.banks, data.Banks...)
	b.branches = append(b.branches, data.Branches...)
	return nil
}

func (b *Backend) accountIndex(key models.Key) int {
	for i := range b.accounts {
		if b.accounts[i].Category == key.Category && b.accounts[i].RecordID == key.RecordID {
			return i
		}
	}
	return -1
}

func (b *Backend) CreateBank(_ context.Context, bank dirmodels.Bank) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.banks {
		if existing.ID == bank.ID {
			return fmt.Errorf("bank %s already exists: %w", bank.ID, sentinel.ErrConflict)
		}
		if strings.EqualFold(strings.TrimSpace(existing.Name), strings.TrimSpace(bank.Name)) {
			return fmt.Errorf("bank name %q already exists: %w", bank.Name, sentinel.ErrConflict)
		}
	}
	now := b.now()
	bank.CreatedAt, bank.UpdatedAt = now, now
	b.banks = append(b.banks, bank)
	return nil
}

func (b *Backend) CreateBranch(_ context.Context, branch dirmodels.Branch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.branches {
		if existing.ID == branch.ID {
			return fmt.Errorf("branch %s already exists: %w", branch.ID, sentinel.ErrConflict)
		}
		if strings.EqualFold(strings.TrimSpace(existing.RoutingCode), strings.TrimSpace(branch.RoutingCode)) {
			return fmt.Errorf("routing code %s already has a branch: %w", branch.RoutingCode, sentinel.ErrConflict)
		}
	}
	now := b.now()
	branch.CreatedAt, branch.UpdatedAt = now, now
	b.branches = append(b.branches, branch)
	return nil
}

func (b *Backend) SaveAccount(_ context.Context, account models.PersonnelAccount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.accountIndex(account.Key())
	if i < 0 {
		return fmt.Errorf("record %s not found: %w", account.Key(), sentinel.ErrNotFound)
	}
	cur := &b.accounts[i]
	cur.PersonnelName = account.PersonnelName
	cur.Gender = account.Gender
	cur.DepartmentID = account.DepartmentID
	cur.DesignationID = account.DesignationID
	cur.Mobile = account.Mobile
	cur.EpicID = account.EpicID
	cur.BankID = account.BankID
	cur.BranchID = account.BranchID
	cur.RoutingCode = account.RoutingCode
	cur.AccountNumber = account.AccountNumber
	cur.ProofDocument = account.ProofDocument
	cur.UpdatedAt = b.now()
	return nil
}

func (b *Backend) SetVerification(_ context.Context, key models.Key, verified bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.accountIndex(key)
	if i < 0 {
		return fmt.Errorf("record %s not found: %w", key, sentinel.ErrNotFound)
	}
	b.accounts[i].Verified = verified
	b.accounts[i].UpdatedAt = b.now()
	return nil
}

func (b *Backend) UpdatePIN(_ context.Context, key models.Key, pinHash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.accountIndex(key)
	if i < 0 {
		return fmt.Errorf("record %s not found: %w", key, sentinel.ErrNotFound)
	}
	b.accounts[i].PINHash = pinHash
	b.accounts[i].PINChanged = true
	b.accounts[i].UpdatedAt = b.now()
	return nil
}

func (b *Backend) UpdateUser(_ context.Context, user models.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.users {
		if b.users[i].ID != user.ID {
			continue
		}
		cur := &b.users[i]
		cur.PasswordHash = user.PasswordHash
		cur.Role = user.Role
		cur.OfficerName = user.OfficerName
		cur.Designation = user.Designation
		cur.Mobile = user.Mobile
		return nil
	}
	return fmt.Errorf("user %s not found: %w", user.ID, sentinel.ErrNotFound)
}

// FetchAll returns copies; callers may not mutate backend state through them.
func (b *Backend) FetchAll(_ context.Context) (*backend.Data, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &backend.Data{
		Accounts: append([]models.PersonnelAccount(nil), b.accounts...),
		Banks:    append([]dirmodels.Bank(nil), b.banks...),
		Branches: append([]dirmodels.Branch(nil), b.branches...),
		Users:    append([]models.User(nil), b.users...),
	}, nil
}
