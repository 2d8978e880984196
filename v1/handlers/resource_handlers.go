package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/chitbox-dev/chitfund-portal/shared/audit"
	"github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// Document handlers

func (h *V1Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	parts := utils.PathSegments(r.URL.Path, "/api/v1/documents")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getDocument(w, r, user, parts[0])
	case len(parts) == 2 && parts[1] == "content" && r.Method == http.MethodGet:
		h.getDocumentContent(w, r, user, parts[0])
	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPut:
		h.reviewDocument(w, r, user, parts[0])
	case len(parts) == 1 || len(parts) == 2:
		methodNotAllowed(w)
	default:
		endpointNotFound(w)
	}
}

// visibleDocument loads a document and checks the caller may see its scheme
func (h *V1Handler) visibleDocument(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, documentID string) (*models.Document, bool) {
	document, err := h.documentService.GetDocument(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if _, ok := h.visibleScheme(w, r, user, document.SchemeID); !ok {
		return nil, false
	}
	return document, true
}

func (h *V1Handler) getDocument(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, documentID string) {
	document, ok := h.visibleDocument(w, r, user, documentID)
	if !ok {
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, document)
}

func (h *V1Handler) getDocumentContent(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, documentID string) {
	if _, ok := h.visibleDocument(w, r, user, documentID); !ok {
		return
	}

	document, content, err := h.documentService.OpenDocument(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	contentType := document.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": document.FileName}))
	w.Header().Set("X-Content-SHA256", document.SHA256)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *V1Handler) reviewDocument(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, documentID string) {
	var req models.ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	document, err := h.documentService.ReviewDocument(r.Context(), user.UserID, documentID, &req)
	auditOutcome(r, models.ResourceTypeDocuments, &documentID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, document)
}

// Certificate handlers

func (h *V1Handler) handleCertificates(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	parts := utils.PathSegments(r.URL.Path, "/api/v1/certificates")
	if len(parts) == 0 || len(parts) > 2 || (len(parts) == 2 && parts[1] != "verify") {
		endpointNotFound(w)
		return
	}

	certificate, err := h.certificateService.GetCertificate(r.Context(), parts[0])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, ok := h.visibleScheme(w, r, user, certificate.SchemeID); !ok {
		return
	}

	if len(parts) == 1 {
		utils.RespondWithSuccess(w, http.StatusOK, certificate)
		return
	}
	verification, err := h.certificateService.VerifyCertificate(r.Context(), certificate.CertificateID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, verification)
}

// Monthly report handlers

func (h *V1Handler) handleReports(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	parts := utils.PathSegments(r.URL.Path, "/api/v1/reports")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		report, err := h.reportService.GetReport(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if _, ok := h.visibleScheme(w, r, user, report.SchemeID); !ok {
			return
		}
		utils.RespondWithSuccess(w, http.StatusOK, report)
	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPut:
		h.reviewReport(w, r, user, parts[0])
	case len(parts) == 1 || len(parts) == 2:
		methodNotAllowed(w)
	default:
		endpointNotFound(w)
	}
}

func (h *V1Handler) reviewReport(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, reportID string) {
	var req models.ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.reportService.ReviewMonthlyReport(r.Context(), user.UserID, reportID, &req)
	auditOutcome(r, models.ResourceTypeReports, &reportID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, report)
}

// Chit score handler. Subscribers read their own score, foremen read the
// score of any subscriber, admins and system users read any score.
func (h *V1Handler) handleChitScore(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	parts := utils.PathSegments(r.URL.Path, "/api/v1/chit-score")
	if len(parts) != 1 {
		endpointNotFound(w)
		return
	}
	userID := parts[0]
	if userID == "me" {
		userID = user.UserID
	}

	// Foremen may also vet subscribers who are not yet in their schemes
	if !authutils.CanAccessResource(user, models.PermissionReadChitScore, userID) {
		if !user.IsForeman() {
			utils.RespondWithError(w, http.StatusForbidden, "You can only view your own chit score")
			return
		}
		target, err := h.userService.GetUser(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if target.Role != models.RoleSubscriber {
			utils.RespondWithError(w, http.StatusForbidden, "Chit scores are only available for subscribers")
			return
		}
	}

	score, err := h.chitScoreService.GetChitScore(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, score)
}

// Audit log handler

func (h *V1Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if h.auditLogs == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Audit logs are stored by the remote audit service")
		return
	}

	query := r.URL.Query()
	limit, err := queryInt(query.Get("limit"), defaultAuditPageSize)
	if err != nil || limit <= 0 || limit > maxAuditPageSize {
		utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxAuditPageSize))
		return
	}
	offset, err := queryInt(query.Get("offset"), 0)
	if err != nil || offset < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	targetType := query.Get("targetType")
	if targetType == "" {
		targetType = query.Get("resourceType")
	}

	logs, total, err := h.auditLogs.List(r.Context(), audit.LogFilter{
		ActorID:    query.Get("actorId"),
		Status:     query.Get("status"),
		TargetType: targetType,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []audit.AuditLog{}
	}
	utils.RespondWithSuccess(w, http.StatusOK, map[string]interface{}{
		"items":  logs,
		"count":  len(logs),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
