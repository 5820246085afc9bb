package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollbank/internal/accounts/models"
	"pollbank/internal/users/service"
	"pollbank/pkg/domain"
	"pollbank/pkg/platform/httputil"
	request "pollbank/pkg/platform/middleware/request"
	"pollbank/pkg/requestcontext"
)

// Service manages admin and regional users.
type Service interface {
	List(ctx context.Context, actor domain.Actor, query string) ([]models.User, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*models.User, error)
	Update(ctx context.Context, actor domain.Actor, id string, upd service.Update) (*models.User, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the user routes. Callers must apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users", h.handleList)
	r.Get("/users/{id}", h.handleGet)
	r.Put("/users/{id}", h.handleUpdate)
}

type listResponse struct {
	Users []models.User `json:"users"`
	Count int           `json:"count"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.service.List(ctx, requestcontext.Actor(ctx), r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Users: users, Count: len(users)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.service.Get(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	id := chi.URLParam(r, "id")
	req, ok := httputil.DecodeAndPrepare[UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	user, err := h.service.Update(ctx, requestcontext.Actor(ctx), id, req.Update())
	if err != nil {
		h.logger.WarnContext(ctx, "user update rejected",
			"request_id", requestID,
			"user_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
