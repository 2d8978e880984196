package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
)

// AuthContextKey is the key used to store authentication context in request context
type AuthContextKey string

const (
	AuthContextKeyUser AuthContextKey = "authenticated_user"
	AuthContextKeyAuth AuthContextKey = "auth_context"

	AuthContextKeyClientIP AuthContextKey = "client_ip"
)

// ExtractBearerToken extracts the Bearer token from the Authorization header
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is missing")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("bearer token is empty")
	}

	return token, nil
}

// ExtractToken returns the bearer token, falling back to the session cookie
// when no Authorization header is present
func ExtractToken(r *http.Request, cookieName string) (string, error) {
	if r.Header.Get("Authorization") != "" {
		return ExtractBearerToken(r)
	}
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("no bearer token or session cookie")
}

// GetAuthenticatedUser retrieves the authenticated user from request context
func GetAuthenticatedUser(ctx context.Context) (*models.AuthenticatedUser, error) {
	user, ok := ctx.Value(AuthContextKeyUser).(*models.AuthenticatedUser)
	if !ok || user == nil {
		return nil, fmt.Errorf("no authenticated user found in context")
	}
	return user, nil
}

// GetAuthContext retrieves the auth context from request context
func GetAuthContext(ctx context.Context) (*models.AuthContext, error) {
	authCtx, ok := ctx.Value(AuthContextKeyAuth).(*models.AuthContext)
	if !ok || authCtx == nil {
		return nil, fmt.Errorf("no auth context found in request context")
	}
	return authCtx, nil
}

// SetAuthenticatedUser sets the authenticated user in request context
func SetAuthenticatedUser(ctx context.Context, user *models.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, AuthContextKeyUser, user)
}

// SetAuthContext sets the auth context in request context
func SetAuthContext(ctx context.Context, authCtx *models.AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKeyAuth, authCtx)
}

// RequireAuthentication is a helper that checks if a user is authenticated
func RequireAuthentication(r *http.Request) (*models.AuthenticatedUser, error) {
	return GetAuthenticatedUser(r.Context())
}

// IsOwner checks if the authenticated user owns the resource
func IsOwner(user *models.AuthenticatedUser, resourceOwnerID string) bool {
	return user.UserID == resourceOwnerID
}

// CanAccessResource determines if a user can access a resource based on:
// 1. Admin and system roles (permission only)
// 2. Foremen and subscribers (permission plus ownership when an owner is given)
func CanAccessResource(user *models.AuthenticatedUser, permission models.Permission, resourceOwnerID string) bool {
	if !user.HasPermission(permission) {
		return false
	}

	if user.IsAdmin() || user.IsSystem() {
		return true
	}

	// Collection endpoints and resource creation have no owner to compare
	if resourceOwnerID == "" {
		return true
	}
	return IsOwner(user, resourceOwnerID)
}

// TrustedProxies lists the networks whose forwarding headers are believed
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses IP addresses and CIDR ranges
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

// Trusts reports whether ip belongs to a trusted proxy
func (p TrustedProxies) Trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client address of r. X-Forwarded-For and X-Real-IP
// are only read when the direct peer is a trusted proxy. X-Forwarded-For is
// walked from the right and the first untrusted hop is the client.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteIP(r)
	if len(p) == 0 || !p.Trusts(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !p.Trusts(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func remoteIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// SetClientIP stores the resolved client address in the request context
func SetClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, AuthContextKeyClientIP, ip)
}

// GetRequestIP returns the client address resolved by the ClientIP middleware,
// falling back to the direct peer address
func GetRequestIP(r *http.Request) string {
	if ip, ok := r.Context().Value(AuthContextKeyClientIP).(string); ok && ip != "" {
		return ip
	}
	return remoteIP(r)
}

// MatchesEndpoint checks if a request path matches an endpoint pattern.
// A "*" segment matches exactly one path segment. A final segment ending in
// "*" matches that prefix and any remaining segments, so
// "/api/v1/schemes/*/documents*" matches ".../documents" and ".../documents/summary".
func MatchesEndpoint(requestPath, endpointPattern string) bool {
	if endpointPattern == requestPath {
		return true
	}
	if !strings.Contains(endpointPattern, "*") {
		return false
	}

	patternParts := strings.Split(strings.Trim(endpointPattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(requestPath, "/"), "/")

	for i, part := range patternParts {
		last := i == len(patternParts)-1

		if last && part != "*" && strings.HasSuffix(part, "*") {
			if i >= len(pathParts) {
				return false
			}
			return strings.HasPrefix(pathParts[i], strings.TrimSuffix(part, "*"))
		}

		if i >= len(pathParts) {
			return false
		}
		if part == "*" {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if part != pathParts[i] {
			return false
		}
	}

	return len(pathParts) == len(patternParts)
}

// endpointLookupCache caches endpoint permissions for O(1) lookup
type endpointLookupCache struct {
	exactMatches    map[string]*models.EndpointPermission // method:path -> permission
	wildcardMatches []models.EndpointPermission           // patterns with wildcards, in declaration order
}

var (
	endpointCache *endpointLookupCache
	initOnce      sync.Once
)

// initializeEndpointCache builds the lookup cache from EndpointPermissions
func initializeEndpointCache() {
	initOnce.Do(func() {
		cache := &endpointLookupCache{
			exactMatches:    make(map[string]*models.EndpointPermission),
			wildcardMatches: make([]models.EndpointPermission, 0),
		}

		for i := range models.EndpointPermissions {
			ep := &models.EndpointPermissions[i]
			if strings.Contains(ep.Path, "*") {
				cache.wildcardMatches = append(cache.wildcardMatches, *ep)
			} else {
				cache.exactMatches[ep.Method+":"+ep.Path] = ep
			}
		}

		endpointCache = cache
	})
}

// FindEndpointPermission finds the required permission for a given HTTP method and path.
// Exact matches win; otherwise the first matching wildcard pattern is used.
func FindEndpointPermission(method, path string) (*models.EndpointPermission, bool) {
	initializeEndpointCache()

	if ep, exists := endpointCache.exactMatches[method+":"+path]; exists {
		return ep, true
	}

	for i := range endpointCache.wildcardMatches {
		ep := &endpointCache.wildcardMatches[i]
		if ep.Method == method && MatchesEndpoint(path, ep.Path) {
			return ep, true
		}
	}

	return nil, false
}

// ResetEndpointCacheForTesting resets the endpoint cache. Tests only.
func ResetEndpointCacheForTesting() {
	endpointCache = nil
	initOnce = sync.Once{}
}

// IsPublicEndpoint reports whether the request needs no authentication
func IsPublicEndpoint(method, path string) bool {
	if path == "/health" || path == "/metrics" {
		return true
	}
	for _, ep := range models.PublicEndpoints {
		if ep.Method != method {
			continue
		}
		if ep.Path == "/api/v1/*" {
			if strings.HasPrefix(path, "/api/v1/") {
				return true
			}
			continue
		}
		if MatchesEndpoint(path, ep.Path) {
			return true
		}
	}
	return false
}
