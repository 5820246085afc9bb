package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pollbank/internal/directory/models"
	"pollbank/internal/directory/resolver"
	"pollbank/internal/directory/store"
	dErrors "pollbank/pkg/domain-errors"
	"pollbank/pkg/platform/httputil"
	request "pollbank/pkg/platform/middleware/request"
)

// DirectorySource supplies the current directory generation.
type DirectorySource interface {
	Directory(ctx context.Context) (*store.Directory, error)
}

// Resolver previews what a save would do with a routing code.
type Resolver interface {
	Resolve(ctx context.Context, code string, dir *store.Directory) (resolver.Resolution, error)
}

type Handler struct {
	source   DirectorySource
	resolver Resolver
	logger   *slog.Logger
}

func New(source DirectorySource, r Resolver, logger *slog.Logger) *Handler {
	return &Handler{source: source, resolver: r, logger: logger}
}

// Register mounts the directory routes. Callers must apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/directory/banks", h.handleBanks)
	r.Get("/directory/branches", h.handleBranches)
	r.Post("/directory/resolve", h.handleResolve)
}

type banksResponse struct {
	Banks []models.Bank `json:"banks"`
}

type branchesResponse struct {
	Branches []models.Branch `json:"branches"`
}

func (h *Handler) handleBanks(w http.ResponseWriter, r *http.Request) {
	dir, err := h.source.Directory(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	banks := dir.Banks()
	if banks == nil {
		banks = []models.Bank{}
	}
	httputil.WriteJSON(w, http.StatusOK, banksResponse{Banks: banks})
}

// handleBranches lists branches, optionally only those of ?bank_id=.
func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	dir, err := h.source.Directory(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	bankID := strings.TrimSpace(r.URL.Query().Get("bank_id"))
	branches := []models.Branch{}
	for _, br := range dir.Branches() {
		if bankID == "" || br.BankID == bankID {
			branches = append(branches, br)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, branchesResponse{Branches: branches})
}

type ResolveRequest struct {
	RoutingCode string `json:"routing_code"`
}

func (r *ResolveRequest) Validate() error {
	r.RoutingCode = strings.TrimSpace(r.RoutingCode)
	if r.RoutingCode == "" {
		return dErrors.New(dErrors.CodeValidation, "routing_code is required")
	}
	return nil
}

// handleResolve reports what a save would resolve the code to. Nothing is
// written; staged entries appear as pending.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	dir, err := h.source.Directory(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.resolver.Resolve(ctx, req.RoutingCode, dir)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
