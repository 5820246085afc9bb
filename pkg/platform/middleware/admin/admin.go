package admin

import (
	"log/slog"
	"net/http"

	"pollbank/pkg/domain"
	request "pollbank/pkg/platform/middleware/request"
	"pollbank/pkg/requestcontext"
)

// RequireRole rejects requests whose authenticated actor holds none of roles.
// It must run after auth.RequireAuth.
func RequireRole(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			if !allowed[actor.Role] {
				logger.WarnContext(ctx, "role not permitted",
					"request_id", request.GetRequestID(ctx),
					"actor_id", actor.UserID,
					"role", actor.Role,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"permission_denied","error_description":"role not permitted"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole restricted to administrators.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.RoleAdmin)
}
