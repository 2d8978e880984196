package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/shared/audit"
	"github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/storage"
	"github.com/chitbox-dev/chitfund-portal/v1/middleware"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/chitbox-dev/chitfund-portal/v1/services"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
	"gorm.io/gorm"
)

// idempotencyKeyHeader carries the client chosen key for workflow actions
const idempotencyKeyHeader = "Idempotency-Key"

// AuditLogLister lists stored audit events. Only the database auditor supports it.
type AuditLogLister interface {
	List(ctx context.Context, filter audit.LogFilter) ([]audit.AuditLog, int64, error)
}

// Options carries the collaborators of the V1 handler
type Options struct {
	Catalog    *config.Catalog
	Tokens     *authutils.TokenManager
	Blobs      *storage.BlobStore
	ScoreCache services.ScoreCache
	AuditLogs  AuditLogLister
	Auth       config.AuthConfig
	Storage    config.StorageConfig
	ScoreTTL   time.Duration

	LoginLimiter middleware.RateLimiter
	RateLimit    config.RateLimitConfig
}

// V1Handler handles all V1 API routes
type V1Handler struct {
	authService          *services.AuthService
	userService          *services.UserService
	accessRequestService *services.AccessRequestService
	schemeService        *services.SchemeService
	workflowEngine       *services.WorkflowEngine
	documentService      *services.DocumentService
	certificateService   *services.CertificateService
	reportService        *services.ReportService
	chitScoreService     *services.ChitScoreService
	auditLogs            AuditLogLister

	auth           config.AuthConfig
	maxUploadBytes int64
	loginLimit     func(http.Handler) http.Handler
}

// NewV1Handler creates a new V1 handler
func NewV1Handler(db *gorm.DB, opts Options) *V1Handler {
	certs := services.NewCertificateService(db)
	scores := services.NewChitScoreService(db, opts.ScoreCache, opts.ScoreTTL)

	return &V1Handler{
		authService:          services.NewAuthService(db, opts.Tokens),
		userService:          services.NewUserService(db),
		accessRequestService: services.NewAccessRequestService(db, opts.Catalog, opts.Auth.ActivationTTL),
		schemeService:        services.NewSchemeService(db, certs),
		workflowEngine:       services.NewWorkflowEngine(db, opts.Catalog, certs),
		documentService:      services.NewDocumentService(db, opts.Catalog, opts.Blobs, opts.Storage.MaxUploadBytes),
		certificateService:   certs,
		reportService:        services.NewReportService(db, scores),
		chitScoreService:     scores,
		auditLogs:            opts.AuditLogs,
		auth:                 opts.Auth,
		maxUploadBytes:       opts.Storage.MaxUploadBytes,
		loginLimit:           middleware.RateLimit(opts.LoginLimiter, "login", opts.RateLimit.LoginLimit, opts.RateLimit.LoginWindow),
	}
}

// RouteTemplates lists the API routes for metrics labelling
func RouteTemplates() []string {
	return []string{
		"/health",
		"/metrics",
		"/api/v1/auth/login",
		"/api/v1/auth/logout",
		"/api/v1/auth/activate",
		"/api/v1/assessment/questions",
		"/api/v1/status-badges",
		"/api/v1/access-requests",
		"/api/v1/access-requests/{id}",
		"/api/v1/access-requests/{id}/assessment",
		"/api/v1/access-requests/{id}/review",
		"/api/v1/users",
		"/api/v1/users/me",
		"/api/v1/users/{id}",
		"/api/v1/schemes",
		"/api/v1/schemes/{id}",
		"/api/v1/schemes/{id}/submit",
		"/api/v1/schemes/{id}/commence",
		"/api/v1/schemes/{id}/workflow",
		"/api/v1/schemes/{id}/workflow/actions",
		"/api/v1/schemes/{id}/enrollments",
		"/api/v1/schemes/{id}/documents",
		"/api/v1/schemes/{id}/documents/summary",
		"/api/v1/schemes/{id}/certificates",
		"/api/v1/schemes/{id}/reports",
		"/api/v1/documents/{id}",
		"/api/v1/documents/{id}/content",
		"/api/v1/documents/{id}/review",
		"/api/v1/certificates/{id}",
		"/api/v1/certificates/{id}/verify",
		"/api/v1/reports/{id}",
		"/api/v1/reports/{id}/review",
		"/api/v1/chit-score/{id}",
		"/api/v1/audit-logs",
	}
}

// SetupV1Routes configures all V1 API routes
func (h *V1Handler) SetupV1Routes(mux *http.ServeMux) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, utils.PanicRecoveryMiddleware(fn))
	}

	// Public routes
	mux.Handle("/api/v1/auth/login", utils.PanicRecoveryMiddleware(h.loginLimit(http.HandlerFunc(h.login))))
	handle("/api/v1/auth/logout", h.logout)
	handle("/api/v1/auth/activate", h.activate)
	handle("/api/v1/assessment/questions", h.getAssessmentQuestions)
	handle("/api/v1/status-badges", h.getStatusBadges)

	// Access request routes
	handle("/api/v1/access-requests", h.handleAccessRequests)
	handle("/api/v1/access-requests/", h.handleAccessRequests)

	// User routes
	handle("/api/v1/users", h.handleUsers)
	handle("/api/v1/users/", h.handleUsers)

	// Scheme routes and nested resources
	handle("/api/v1/schemes", h.handleSchemes)
	handle("/api/v1/schemes/", h.handleSchemes)

	handle("/api/v1/documents/", h.handleDocuments)
	handle("/api/v1/certificates/", h.handleCertificates)
	handle("/api/v1/reports/", h.handleReports)
	handle("/api/v1/chit-score/", h.handleChitScore)
	handle("/api/v1/audit-logs", h.handleAuditLogs)
}

// writeServiceError maps service sentinel errors onto HTTP status codes
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "method", r.Method)
		message := "Internal server error"
		if errors.Is(err, models.ErrIntegrity) {
			message = "Stored content failed its integrity check"
		}
		utils.RespondWithError(w, status, message)
		return
	}
	utils.RespondWithError(w, status, err.Error())
}

// decodeAndValidate parses a JSON body and runs struct validation
func decodeAndValidate(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := utils.ParseJSONRequest(r, target); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := authutils.ValidateStruct(target); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// requireUser returns the user of the verified session or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (*models.AuthenticatedUser, bool) {
	authCtx, err := authutils.GetAuthContext(r.Context())
	if err != nil || authCtx.User == nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return authCtx.User, true
}

func methodNotAllowed(w http.ResponseWriter) {
	utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func endpointNotFound(w http.ResponseWriter) {
	utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
}

// auditOutcome records the outcome of a write
func auditOutcome(r *http.Request, resource models.ResourceType, resourceID *string, err error) {
	status := models.AuditStatusSuccess
	if err != nil {
		status = models.AuditStatusFailure
	}
	middleware.LogAuditEvent(r, resource, resourceID, status)
}
