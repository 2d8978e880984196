package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chitbox-dev/chitfund-portal/shared/audit"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func issueToken(t *testing.T, tokens *authutils.TokenManager, role models.Role) string {
	token, _, err := tokens.Issue(&models.User{UserID: "usr_1", Email: "u@example.com", Name: "U", Role: role})
	require.NoError(t, err)
	return token
}

func TestJWTAuthMiddleware(t *testing.T) {
	tokens := authutils.NewTokenManager(testSecret, "chitfund-portal", time.Hour)
	handler := NewJWTAuthMiddleware(tokens, "portal_session").AuthenticateJWT(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authutils.GetAuthenticatedUser(r.Context())
			if err != nil {
				w.WriteHeader(http.StatusTeapot)
				return
			}
			w.Header().Set("X-User", user.UserID)
			w.WriteHeader(http.StatusOK)
		}))

	t.Run("Public_Endpoint_Skips_Auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("Missing_Token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Invalid_Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Bearer_Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, tokens, models.RoleForeman))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "usr_1", w.Header().Get("X-User"))
	})

	t.Run("Session_Cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil)
		req.AddCookie(&http.Cookie{Name: "portal_session", Value: issueToken(t, tokens, models.RoleSubscriber)})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func withUser(r *http.Request, roles ...models.Role) *http.Request {
	user := &models.AuthenticatedUser{UserID: "usr_1", Email: "u@example.com", Roles: roles, ExpiresAt: time.Now().Add(time.Hour)}
	return r.WithContext(authutils.SetAuthenticatedUser(r.Context(), user))
}

func TestAuthorizationMiddleware(t *testing.T) {
	authutils.ResetEndpointCacheForTesting()
	defer authutils.ResetEndpointCacheForTesting()

	tests := []struct {
		name     string
		mode     models.AuthorizationMode
		method   string
		path     string
		roles    []models.Role
		expected int
	}{
		{"Unauthenticated", models.AuthorizationModeFailClosed, "GET", "/api/v1/schemes", nil, http.StatusUnauthorized},
		{"Public endpoint", models.AuthorizationModeFailClosed, "POST", "/api/v1/access-requests", nil, http.StatusOK},
		{"Foreman creates scheme", models.AuthorizationModeFailClosed, "POST", "/api/v1/schemes", []models.Role{models.RoleForeman}, http.StatusOK},
		{"Subscriber cannot create scheme", models.AuthorizationModeFailClosed, "POST", "/api/v1/schemes", []models.Role{models.RoleSubscriber}, http.StatusForbidden},
		{"Foreman cannot act on workflow", models.AuthorizationModeFailClosed, "POST", "/api/v1/schemes/sch_1/workflow/actions", []models.Role{models.RoleForeman}, http.StatusForbidden},
		{"Admin acts on workflow", models.AuthorizationModeFailClosed, "POST", "/api/v1/schemes/sch_1/workflow/actions", []models.Role{models.RoleAdmin}, http.StatusOK},
		{"Undefined fail closed", models.AuthorizationModeFailClosed, "GET", "/api/v1/unknown", []models.Role{models.RoleAdmin}, http.StatusForbidden},
		{"Undefined fail open admin", models.AuthorizationModeFailOpenAdmin, "GET", "/api/v1/unknown", []models.Role{models.RoleAdmin}, http.StatusOK},
		{"Undefined fail open admin denies system", models.AuthorizationModeFailOpenAdmin, "GET", "/api/v1/unknown", []models.Role{models.RoleSystem}, http.StatusForbidden},
		{"Undefined fail open admin system", models.AuthorizationModeFailOpenAdminSystem, "GET", "/api/v1/unknown", []models.Role{models.RoleSystem}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthorizationMiddlewareWithConfig(AuthorizationConfig{Mode: tt.mode}).AuthorizeRequest(okHandler())
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.roles != nil {
				req = withUser(req, tt.roles...)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := NewCORSMiddleware([]string{"http://localhost:5173"})(okHandler())

	t.Run("Allowed_Origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("Unknown_Origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/schemes", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	})
}

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

func TestRateLimit(t *testing.T) {
	t.Run("Blocks_After_Limit", func(t *testing.T) {
		limiter := &fakeLimiter{counts: map[string]int{}}
		handler := RateLimit(limiter, "login", 2, time.Minute)(okHandler())

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = "10.0.0.1:5000"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("Spoofed_Forwarding_Headers_Do_Not_Reset_Limit", func(t *testing.T) {
		limiter := &fakeLimiter{counts: map[string]int{}}
		handler := ClientIP(nil)(RateLimit(limiter, "login", 2, time.Minute)(okHandler()))

		codes := make([]int, 0, 5)
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = "10.0.0.1:5000"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
			req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests,
			http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
		assert.Equal(t, 5, limiter.counts["ratelimit:login:10.0.0.1"])
	})

	t.Run("Trusted_Proxy_Forwards_Client", func(t *testing.T) {
		proxies, err := authutils.ParseTrustedProxies([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		limiter := &fakeLimiter{counts: map[string]int{}}
		handler := ClientIP(proxies)(RateLimit(limiter, "login", 1, time.Minute)(okHandler()))

		for _, client := range []string{"203.0.113.1", "203.0.113.2"} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = "10.0.0.1:5000"
			req.Header.Set("X-Forwarded-For", client)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, client)
		}
		assert.Equal(t, 1, limiter.counts["ratelimit:login:203.0.113.1"])
		assert.Equal(t, 1, limiter.counts["ratelimit:login:203.0.113.2"])
	})

	t.Run("Limiter_Error_Allows", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis down")}
		handler := RateLimit(limiter, "login", 1, time.Minute)(okHandler())
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Disabled_When_Nil", func(t *testing.T) {
		handler := RateLimit(nil, "login", 1, time.Minute)(okHandler())
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []*audit.AuditLogRequest
}

func (r *recordingAuditor) LogEvent(_ context.Context, event *audit.AuditLogRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAuditor) IsEnabled() bool { return true }

func TestLogAudit(t *testing.T) {
	t.Run("Write_Operation_Logged", func(t *testing.T) {
		auditor := &recordingAuditor{}
		req := withUser(httptest.NewRequest(http.MethodPut, "/api/v1/schemes/sch_1", nil), models.RoleForeman)
		id := "sch_1"

		LogAudit(auditor, req, models.ResourceTypeSchemes, &id, audit.StatusSuccess)

		require.Len(t, auditor.events, 1)
		event := auditor.events[0]
		assert.Equal(t, "FOREMAN", event.ActorType)
		assert.Equal(t, "usr_1", event.ActorID)
		assert.Equal(t, "SCHEMES", event.TargetType)
		assert.Equal(t, "UPDATE", *event.EventAction)
		assert.Equal(t, audit.EventTypeManagement, *event.EventType)
		assert.Equal(t, "sch_1", *event.TargetID)
	})

	t.Run("Read_Operation_Skipped", func(t *testing.T) {
		auditor := &recordingAuditor{}
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/schemes/sch_1", nil), models.RoleForeman)
		LogAudit(auditor, req, models.ResourceTypeSchemes, nil, audit.StatusSuccess)
		assert.Empty(t, auditor.events)
	})

	t.Run("Anonymous_Public_Write", func(t *testing.T) {
		auditor := &recordingAuditor{}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/access-requests", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		LogAudit(auditor, req, models.ResourceTypeAccessRequests, nil, audit.StatusSuccess)
		require.Len(t, auditor.events, 1)
		assert.Equal(t, "ANONYMOUS", auditor.events[0].ActorType)
		assert.Equal(t, "anonymous@203.0.113.9", auditor.events[0].ActorID)
	})

	t.Run("Global_LogAuditEvent", func(t *testing.T) {
		auditor := &recordingAuditor{}
		previous := SetAuditor(auditor)
		defer SetAuditor(previous)
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/schemes/sch_1/workflow/actions", nil), models.RoleAdmin)

		LogAuditEvent(req, models.ResourceTypeWorkflows, nil, models.AuditStatusFailure)

		require.Len(t, auditor.events, 1)
		assert.Equal(t, audit.StatusFailure, auditor.events[0].Status)
		assert.Equal(t, audit.EventTypeWorkflow, *auditor.events[0].EventType)
	})
}

func TestFlushAuditor(t *testing.T) {
	t.Run("No_Auditor", func(t *testing.T) {
		previous := SetAuditor(nil)
		defer SetAuditor(previous)
		FlushAuditor()
		LogAuditEvent(httptest.NewRequest(http.MethodPost, "/api/v1/schemes", nil), models.ResourceTypeSchemes, nil, models.AuditStatusSuccess)
	})

	t.Run("Flushes_Async_Auditor", func(t *testing.T) {
		auditor := &flushingAuditor{}
		previous := SetAuditor(auditor)
		defer SetAuditor(previous)

		FlushAuditor()
		assert.Equal(t, 1, auditor.flushes)
	})

	t.Run("Synchronous_Auditor", func(t *testing.T) {
		previous := SetAuditor(&recordingAuditor{})
		defer SetAuditor(previous)
		assert.NotPanics(t, FlushAuditor)
	})
}

type flushingAuditor struct {
	recordingAuditor
	flushes int
}

func (f *flushingAuditor) Flush() { f.flushes++ }
