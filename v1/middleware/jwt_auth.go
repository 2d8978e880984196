package middleware

import (
	"log/slog"
	"net/http"

	sharedutils "github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

// JWTAuthMiddleware authenticates requests with portal issued session tokens
type JWTAuthMiddleware struct {
	tokens     *authutils.TokenManager
	cookieName string
}

// NewJWTAuthMiddleware creates a new JWT authentication middleware
func NewJWTAuthMiddleware(tokens *authutils.TokenManager, cookieName string) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{tokens: tokens, cookieName: cookieName}
}

// AuthenticateJWT returns a middleware function that validates JWT tokens
func (j *JWTAuthMiddleware) AuthenticateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authutils.IsPublicEndpoint(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := authutils.ExtractToken(r, j.cookieName)
		if err != nil {
			slog.Warn("Failed to extract token", "error", err, "path", r.URL.Path, "method", r.Method)
			sharedutils.RespondWithError(w, http.StatusUnauthorized, "Invalid or missing authorization header")
			return
		}

		claims, err := j.tokens.Parse(tokenString)
		if err != nil {
			slog.Warn("Token validation failed", "error", err, "path", r.URL.Path, "method", r.Method)
			sharedutils.RespondWithError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}

		user := models.NewAuthenticatedUser(claims)
		if user.IsTokenExpired() {
			slog.Warn("Token is expired", "expiry", user.ExpiresAt, "user", user.Email)
			sharedutils.RespondWithError(w, http.StatusUnauthorized, "Access token has expired")
			return
		}

		authCtx := &models.AuthContext{
			User:        user,
			Token:       tokenString,
			IssuedBy:    claims.Issuer,
			Permissions: user.GetPermissions(),
		}

		ctx := authutils.SetAuthenticatedUser(r.Context(), user)
		ctx = authutils.SetAuthContext(ctx, authCtx)

		slog.Debug("User authenticated",
			"user_id", user.UserID,
			"roles", user.Roles,
			"path", r.URL.Path,
			"method", r.Method)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
