// Package snapshot caches one full fetch of the backend. Reads are served
// from the cached generation; after every mutation the caller refreshes it,
// and a failed refresh leaves the cache invalid so the next read reloads.
//
// Every fetch takes a ticket before it reads the backend. A generation is
// installed only if no fetch with a later ticket has been installed and the
// cache was not invalidated after the fetch started, so a reload issued after
// a write can never be overwritten by a fetch that began before it.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pollbank/internal/accounts/models"
	"pollbank/internal/backend"
	"pollbank/internal/directory/store"
	dErrors "pollbank/pkg/domain-errors"
)

// Fetcher is the part of the backend the repository needs.
type Fetcher interface {
	FetchAll(ctx context.Context) (*backend.Data, error)
}

type generation struct {
	accounts   []models.PersonnelAccount
	accountIdx map[models.Key]int
	directory  *store.Directory
	users      []models.User
	userIdx    map[string]int
	loadedAt   time.Time
	ticket     uint64
}

type Repository struct {
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	current *generation
	// ticket is the last ticket handed out; fetches below floor started
	// before the last invalidation and are discarded.
	ticket uint64
	floor  uint64
	// group collapses concurrent lazy loads of the same floor.
	group singleflight.Group
}

type Option func(*Repository)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

func New(fetcher Fetcher, opts ...Option) *Repository {
	r := &Repository{fetcher: fetcher, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh replaces the cached generation with a fetch that starts now. It
// never joins a fetch already in flight. On failure the cache is left
// invalid.
func (r *Repository) Refresh(ctx context.Context) error {
	_, err := r.fetch(ctx)
	return err
}

func (r *Repository) fetch(ctx context.Context) (*generation, error) {
	r.mu.Lock()
	r.ticket++
	ticket := r.ticket
	r.mu.Unlock()

	data, err := r.fetcher.FetchAll(ctx)
	if err != nil {
		r.mu.Lock()
		if r.current == nil || r.current.ticket < ticket {
			r.current = nil
			r.floor = r.ticket + 1
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("refresh snapshot: %w", err)
	}
	gen := build(data, r.now(), ticket)

	r.mu.Lock()
	installed := ticket >= r.floor && (r.current == nil || r.current.ticket < ticket)
	if installed {
		r.current = gen
	}
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.DebugContext(ctx, "snapshot fetched",
			"ticket", ticket,
			"installed", installed,
			"accounts", len(gen.accounts),
			"banks", len(gen.directory.Banks()),
			"branches", len(gen.directory.Branches()),
		)
	}
	return gen, nil
}

// Invalidate drops the cached generation and discards fetches still in
// flight; the next read reloads.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	r.current = nil
	r.floor = r.ticket + 1
	r.mu.Unlock()
}

// LoadedAt reports when the cached generation was fetched, or the zero time
// when the cache is invalid.
func (r *Repository) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return time.Time{}
	}
	return r.current.loadedAt
}

func build(data *backend.Data, now time.Time, ticket uint64) *generation {
	gen := &generation{
		accounts:   append([]models.PersonnelAccount(nil), data.Accounts...),
		accountIdx: make(map[models.Key]int, len(data.Accounts)),
		directory:  store.New(data.Banks, data.Branches),
		users:      append([]models.User(nil), data.Users...),
		userIdx:    make(map[string]int, len(data.Users)),
		loadedAt:   now,
		ticket:     ticket,
	}
	for i, a := range gen.accounts {
		gen.accountIdx[a.Key()] = i
	}
	for i, u := range gen.users {
		gen.userIdx[u.ID] = i
	}
	return gen
}

func (r *Repository) load(ctx context.Context) (*generation, error) {
	r.mu.RLock()
	gen, floor := r.current, r.floor
	r.mu.RUnlock()
	if gen != nil {
		return gen, nil
	}
	v, err, _ := r.group.Do("load:"+strconv.FormatUint(floor, 10), func() (any, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "data is temporarily unavailable")
	}
	gen = v.(*generation)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current != nil && r.current.ticket > gen.ticket {
		return r.current, nil
	}
	return gen, nil
}

// Accounts returns every record of every category.
func (r *Repository) Accounts(ctx context.Context) ([]models.PersonnelAccount, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.PersonnelAccount(nil), gen.accounts...), nil
}

func (r *Repository) Account(ctx context.Context, key models.Key) (*models.PersonnelAccount, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := gen.accountIdx[key]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "record "+key.String()+" not found")
	}
	a := gen.accounts[i]
	return &a, nil
}

// AccountsOwnedBy returns the records owned by a regional user.
func (r *Repository) AccountsOwnedBy(ctx context.Context, userID string) ([]models.PersonnelAccount, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.PersonnelAccount
	for _, a := range gen.accounts {
		if a.OwningUserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// AccountByMobile finds the record registered to mobile (trimmed).
func (r *Repository) AccountByMobile(ctx context.Context, mobile string) (*models.PersonnelAccount, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "no record for mobile")
	}
	for _, a := range gen.accounts {
		if strings.TrimSpace(a.Mobile) == mobile {
			return &a, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no record for mobile")
}

func (r *Repository) Directory(ctx context.Context) (*store.Directory, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return gen.directory, nil
}

func (r *Repository) Users(ctx context.Context) ([]models.User, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.User(nil), gen.users...), nil
}

func (r *Repository) User(ctx context.Context, id string) (*models.User, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := gen.userIdx[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	u := gen.users[i]
	return &u, nil
}

// UserByName matches the login name case-insensitively.
func (r *Repository) UserByName(ctx context.Context, name string) (*models.User, error) {
	gen, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for _, u := range gen.users {
		if strings.EqualFold(u.UserName, name) {
			return &u, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}
