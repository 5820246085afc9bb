// Package resolver maps a routing code to a bank/branch pair, staging new
// directory entries when the code is only known to the external lookup.
package resolver

import (
	"context"
	"log/slog"
	"strings"

	"pollbank/internal/directory/idalloc"
	"pollbank/internal/directory/metrics"
	"pollbank/internal/directory/models"
	"pollbank/internal/directory/store"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	"pollbank/pkg/requestcontext"
)

// Lookup is the external routing-code directory. A nil result with a nil
// error means the code is unknown.
type Lookup interface {
	Lookup(ctx context.Context, code string) (*models.LookupResult, error)
}

type Resolver struct {
	lookup  Lookup
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{lookup: lookup}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps code to a bank/branch pair against dir. It has no side effects.
//
// A malformed code yields KindInvalid together with a CodeInvalidRoutingCode
// error. Every other outcome is reported through the Resolution alone:
// lookup failures are logged and become KindUnresolved.
func (r *Resolver) Resolve(ctx context.Context, code string, dir *store.Directory) (Resolution, error) {
	normalized := domain.NormalizeRoutingCode(code)
	if len(normalized) != domain.RoutingCodeLength {
		r.count(KindInvalid)
		return Resolution{Kind: KindInvalid, RoutingCode: normalized},
			dErrors.New(dErrors.CodeInvalidRoutingCode, "routing code must be exactly 11 characters")
	}

	if br, ok := dir.FindBranchByRoutingCode(normalized); ok {
		r.count(KindResolved)
		return Resolution{
			Kind:        KindResolved,
			RoutingCode: normalized,
			BankID:      br.BankID,
			BranchID:    br.ID,
		}, nil
	}

	if r.lookup == nil {
		return r.unresolved(normalized, "routing code lookup is not configured"), nil
	}

	found, err := r.lookup.Lookup(ctx, normalized)
	if err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "routing code lookup failed",
				"request_id", requestcontext.RequestID(ctx),
				"routing_code", normalized,
				"error", err,
			)
		}
		return r.unresolved(normalized, "routing code lookup failed"), nil
	}
	if found == nil {
		return r.unresolved(normalized, "routing code not found"), nil
	}

	bankName := models.NormalizeBankName(found.BankName)
	branchName := strings.TrimSpace(found.BranchName)
	if bankName == "" {
		return r.unresolved(normalized, "routing code lookup returned no bank name"), nil
	}

	res := Resolution{Kind: KindDiscovered, RoutingCode: normalized}
	if bank, ok := dir.FindBankByName(bankName); ok {
		res.BankID = bank.ID
	} else {
		res.BankID = idalloc.Next(models.BankIDPrefix, dir.BankIDs())
		res.PendingBank = &models.Bank{ID: res.BankID, Name: bankName}
	}

	// A fresh lookup always stages a new branch: the routing code is the
	// deduplication key and the local miss above already ruled it out.
	res.BranchID = idalloc.Next(models.BranchIDPrefix, dir.BranchIDs())
	res.PendingBranch = &models.Branch{
		ID:          res.BranchID,
		Name:        branchName,
		RoutingCode: normalized,
		BankID:      res.BankID,
	}

	r.count(KindDiscovered)
	return res, nil
}

func (r *Resolver) unresolved(code, reason string) Resolution {
	r.count(KindUnresolved)
	return Resolution{Kind: KindUnresolved, RoutingCode: code, Reason: reason}
}

func (r *Resolver) count(kind Kind) {
	if r.metrics != nil {
		r.metrics.IncrementResolution(string(kind))
	}
}
