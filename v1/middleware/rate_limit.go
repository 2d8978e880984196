package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chitbox-dev/chitfund-portal/monitoring"
	sharedutils "github.com/chitbox-dev/chitfund-portal/shared/utils"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

// RateLimiter counts hits per key in a fixed window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit limits requests per client IP as resolved by ClientIP, or the peer
// address when ClientIP is not installed. A nil limiter or a non-positive
// limit disables limiting; limiter errors let the request through.
func RateLimit(limiter RateLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := authutils.GetRequestIP(r)
			key := "ratelimit:" + scope + ":" + ip
			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				slog.Error("Rate limiter unavailable, allowing request", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				slog.Warn("Rate limit exceeded", "scope", scope, "ip", ip)
				if scope == "login" {
					monitoring.RecordLoginAttempt("throttled")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				sharedutils.RespondWithError(w, http.StatusTooManyRequests, "Too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
