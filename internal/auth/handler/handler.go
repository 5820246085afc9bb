package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pollbank/internal/auth/service"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	"pollbank/pkg/platform/httputil"
	request "pollbank/pkg/platform/middleware/request"
	"pollbank/pkg/requestcontext"
)

type Service interface {
	Login(ctx context.Context, userName, password string) (*service.LoginResult, error)
	PersonnelLogin(ctx context.Context, mobile, pin string) (*service.LoginResult, error)
	ChangePIN(ctx context.Context, actor domain.Actor, currentPIN, newPIN string) (*service.LoginResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// RegisterPublic mounts the login routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/personnel/login", h.handlePersonnelLogin)
}

// RegisterProtected mounts routes that need an authenticated actor.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/auth/personnel/pin", h.handleChangePIN)
}

type LoginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.UserName = strings.TrimSpace(r.UserName)
	if r.UserName == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "user_name and password are required")
	}
	return nil
}

type PersonnelLoginRequest struct {
	Mobile string `json:"mobile"`
	PIN    string `json:"pin"`
}

func (r *PersonnelLoginRequest) Validate() error {
	r.Mobile = strings.TrimSpace(r.Mobile)
	r.PIN = strings.TrimSpace(r.PIN)
	if r.Mobile == "" || r.PIN == "" {
		return dErrors.New(dErrors.CodeValidation, "mobile and pin are required")
	}
	return nil
}

type ChangePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

func (r *ChangePINRequest) Validate() error {
	if strings.TrimSpace(r.CurrentPIN) == "" || strings.TrimSpace(r.NewPIN) == "" {
		return dErrors.New(dErrors.CodeValidation, "current_pin and new_pin are required")
	}
	return nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Login(ctx, req.UserName, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePersonnelLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[PersonnelLoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.PersonnelLogin(ctx, req.Mobile, req.PIN)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleChangePIN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[ChangePINRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.ChangePIN(ctx, requestcontext.Actor(ctx), req.CurrentPIN, req.NewPIN)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
