package metadata

import (
	"net"
	"net/http"
	"strings"

	"pollbank/pkg/requestcontext"
)

// ClientMetadata stores the client IP in the request context for audit.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), ClientIPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest returns the host part of r.RemoteAddr. Forwarding
// headers are ignored here; deployments behind a trusted proxy rewrite
// RemoteAddr first (chi middleware.RealIP).
func ClientIPFromRequest(r *http.Request) string {
	addr := r.RemoteAddr
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
