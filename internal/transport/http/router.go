// Package httptransport assembles the chi router: global middleware, the
// public endpoints, and the authenticated module routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dErrors "pollbank/pkg/domain-errors"
	"pollbank/pkg/platform/httputil"
	"pollbank/pkg/platform/middleware/admin"
	authmw "pollbank/pkg/platform/middleware/auth"
	"pollbank/pkg/platform/middleware/metadata"
	request "pollbank/pkg/platform/middleware/request"
	"pollbank/pkg/platform/middleware/requesttime"
)

// ModuleRoutes is implemented by module handlers mounted behind
// authentication.
type ModuleRoutes interface {
	Register(r chi.Router)
}

// AuthRoutes is the login handler, which has both public and protected routes.
type AuthRoutes interface {
	RegisterPublic(r chi.Router)
	RegisterProtected(r chi.Router)
}

// Refresher forces a reload of the cached snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// HealthCheck checks one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config carries everything the router needs.
type Config struct {
	Logger    *slog.Logger
	Observer  request.Observer
	Validator authmw.JWTValidator
	Auth      AuthRoutes
	Modules   []ModuleRoutes
	Refresher Refresher
	Health    []HealthCheck
	// MetricsHandler serves /metrics; defaults to promhttp.Handler.
	MetricsHandler http.Handler
	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.AccessLog(logger, cfg.Observer))

	r.Get("/healthz", healthHandler(cfg.Health))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	if cfg.Auth != nil {
		cfg.Auth.RegisterPublic(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Validator, logger))
		if cfg.Auth != nil {
			cfg.Auth.RegisterProtected(r)
		}
		for _, m := range cfg.Modules {
			m.Register(r)
		}
		if cfg.Refresher != nil {
			r.With(admin.RequireAdmin(logger)).Post("/admin/refresh", refreshHandler(cfg.Refresher, logger))
		}
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for _, c := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := c.Check(r.Context()); err != nil {
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

func refreshHandler(refresher Refresher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := refresher.Refresh(ctx); err != nil {
			logger.ErrorContext(ctx, "admin refresh failed",
				"request_id", request.GetRequestID(ctx),
				"error", err,
			)
			if dErrors.CodeOf(err) == dErrors.CodeInternal {
				err = dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reload data")
			}
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
	}
}
