package middleware

import (
	"log/slog"
	"net/http"

	sharedutils "github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

// AuthorizationConfig configures the authorization middleware behavior
type AuthorizationConfig struct {
	// Mode defines the behavior when no explicit permission is defined for an endpoint
	Mode models.AuthorizationMode

	// StrictMode logs a warning whenever an undefined endpoint is accessed
	StrictMode bool
}

// AuthorizationMiddleware provides role-based access control functionality
type AuthorizationMiddleware struct {
	config AuthorizationConfig
}

// NewAuthorizationMiddleware creates an authorization middleware that denies undefined endpoints
func NewAuthorizationMiddleware() *AuthorizationMiddleware {
	return NewAuthorizationMiddlewareWithConfig(AuthorizationConfig{
		Mode: models.AuthorizationModeFailClosed,
	})
}

// NewAuthorizationMiddlewareWithConfig creates a new authorization middleware with custom configuration
func NewAuthorizationMiddlewareWithConfig(config AuthorizationConfig) *AuthorizationMiddleware {
	return &AuthorizationMiddleware{config: config}
}

// AuthorizeRequest returns a middleware function that checks user permissions for endpoints.
// Endpoints marked IsOwnershipRequired are checked against the resource owner by the handlers.
func (a *AuthorizationMiddleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authutils.IsPublicEndpoint(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user, err := authutils.RequireAuthentication(r)
		if err != nil {
			slog.Warn("Authorization failed: user not authenticated", "path", r.URL.Path, "method", r.Method, "error", err)
			sharedutils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		endpointPermission, found := authutils.FindEndpointPermission(r.Method, r.URL.Path)
		if !found {
			if a.handleUndefinedEndpoint(w, r, user) {
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !user.HasPermission(endpointPermission.Permission) {
			slog.Warn("Access denied: insufficient permissions",
				"user", user.UserID,
				"role", user.GetPrimaryRole(),
				"required_permission", endpointPermission.Permission,
				"path", r.URL.Path,
				"method", r.Method)
			sharedutils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleUndefinedEndpoint handles access control for endpoints without explicit permission mappings.
// Returns true if a response was sent.
func (a *AuthorizationMiddleware) handleUndefinedEndpoint(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser) bool {
	if a.config.StrictMode {
		slog.Warn("SECURITY: Undefined endpoint accessed - consider adding explicit permission mapping",
			"user", user.UserID,
			"role", user.GetPrimaryRole(),
			"path", r.URL.Path,
			"method", r.Method,
			"mode", a.config.Mode)
	}

	switch a.config.Mode {
	case models.AuthorizationModeFailClosed:
		slog.Warn("Access denied to undefined endpoint (fail-closed mode)",
			"user", user.UserID, "path", r.URL.Path, "method", r.Method)
		sharedutils.RespondWithError(w, http.StatusForbidden, "Endpoint access not explicitly permitted")
		return true

	case models.AuthorizationModeFailOpenAdmin:
		if user.IsAdmin() {
			return false
		}
		slog.Warn("Access denied to undefined endpoint (admin-only mode)",
			"user", user.UserID, "path", r.URL.Path, "method", r.Method)
		sharedutils.RespondWithError(w, http.StatusForbidden, "Administrative access required")
		return true

	case models.AuthorizationModeFailOpenAdminSystem:
		if user.IsAdmin() || user.IsSystem() {
			return false
		}
		slog.Warn("Access denied to undefined endpoint (admin/system mode)",
			"user", user.UserID, "path", r.URL.Path, "method", r.Method)
		sharedutils.RespondWithError(w, http.StatusForbidden, "Administrative or system access required")
		return true

	default:
		slog.Error("Invalid authorization mode, defaulting to fail-closed",
			"mode", a.config.Mode, "path", r.URL.Path, "method", r.Method)
		sharedutils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return true
	}
}

// GetUserFromRequest is a helper to extract the authenticated user from request context
func GetUserFromRequest(r *http.Request) (*models.AuthenticatedUser, error) {
	return authutils.GetAuthenticatedUser(r.Context())
}
