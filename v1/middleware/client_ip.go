package middleware

import (
	"net/http"

	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

// ClientIP resolves the client address once per request so rate limiting and
// audit records agree on it. Forwarding headers count only from trusted proxies.
func ClientIP(proxies authutils.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authutils.SetClientIP(r.Context(), proxies.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
