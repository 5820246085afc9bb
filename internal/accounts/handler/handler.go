package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollbank/internal/accounts/models"
	"pollbank/internal/accounts/service"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	"pollbank/pkg/platform/httputil"
	request "pollbank/pkg/platform/middleware/request"
	"pollbank/pkg/requestcontext"
)

// Service is the record lifecycle controller as seen by the transport.
type Service interface {
	List(ctx context.Context, actor domain.Actor, category domain.Category) ([]models.PersonnelAccount, error)
	Get(ctx context.Context, actor domain.Actor, key models.Key) (*models.PersonnelAccount, error)
	Save(ctx context.Context, actor domain.Actor, key models.Key, edit models.Edit) (*service.SaveOutcome, error)
	SetVerification(ctx context.Context, actor domain.Actor, key models.Key, verified bool) (*models.PersonnelAccount, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the account routes. Callers must apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/accounts", h.handleList)
	r.Get("/accounts/{category}/{id}", h.handleGet)
	r.Put("/accounts/{category}/{id}", h.handleSave)
	r.Post("/accounts/{category}/{id}/verification", h.handleVerification)
}

type listResponse struct {
	Accounts []models.PersonnelAccount `json:"accounts"`
	Count    int                       `json:"count"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var category domain.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, err := domain.ParseCategory(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		category = c
	}

	accounts, err := h.service.List(ctx, requestcontext.Actor(ctx), category)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list accounts",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if accounts == nil {
		accounts = []models.PersonnelAccount{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Accounts: accounts, Count: len(accounts)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := parseKey(w, r)
	if !ok {
		return
	}
	account, err := h.service.Get(ctx, requestcontext.Actor(ctx), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	key, ok := parseKey(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SaveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome, err := h.service.Save(ctx, requestcontext.Actor(ctx), key, req.Edit())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "account saved",
		"request_id", requestID,
		"record", key.String(),
		"resolution", outcome.Resolution.Kind,
		"enrichment_failures", len(outcome.EnrichmentFailures),
	)
	httputil.WriteJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	key, ok := parseKey(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	account, err := h.service.SetVerification(ctx, requestcontext.Actor(ctx), key, req.target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "verification changed",
		"request_id", requestID,
		"record", key.String(),
		"verified", account.Verified,
	)
	httputil.WriteJSON(w, http.StatusOK, account)
}

func parseKey(w http.ResponseWriter, r *http.Request) (models.Key, bool) {
	category, err := domain.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return models.Key{}, false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "record id is required"))
		return models.Key{}, false
	}
	return models.Key{Category: category, RecordID: id}, true
}
