package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

// multipartMemory bounds the in-memory part of a parsed upload form
const multipartMemory = 1 << 20

// handleSchemes routes /api/v1/schemes and every nested scheme resource
func (h *V1Handler) handleSchemes(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	parts := utils.PathSegments(r.URL.Path, "/api/v1/schemes")
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			h.listSchemes(w, r, user)
		case http.MethodPost:
			h.createScheme(w, r, user)
		default:
			methodNotAllowed(w)
		}
		return
	}

	schemeID := parts[0]
	resource := strings.Join(parts[1:], "/")
	if !h.authorizeSchemeOwner(w, r, user, schemeID) {
		return
	}

	switch resource {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.getScheme(w, r, user, schemeID)
		case http.MethodPut:
			h.updateScheme(w, r, user, schemeID)
		default:
			methodNotAllowed(w)
		}
	case "submit":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.submitScheme(w, r, user, schemeID)
	case "commence":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.commenceScheme(w, r, user, schemeID)
	case "workflow":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.getWorkflow(w, r, user, schemeID)
	case "workflow/actions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.actOnWorkflow(w, r, user, schemeID)
	case "enrollments":
		switch r.Method {
		case http.MethodGet:
			h.listEnrollments(w, r, user, schemeID)
		case http.MethodPost:
			h.enroll(w, r, user, schemeID)
		default:
			methodNotAllowed(w)
		}
	case "documents":
		switch r.Method {
		case http.MethodGet:
			h.listDocuments(w, r, user, schemeID)
		case http.MethodPost:
			h.uploadDocument(w, r, user, schemeID)
		default:
			methodNotAllowed(w)
		}
	case "documents/summary":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.documentSummary(w, r, user, schemeID)
	case "certificates":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.listCertificates(w, r, user, schemeID)
	case "reports":
		switch r.Method {
		case http.MethodGet:
			h.listReports(w, r, user, schemeID)
		case http.MethodPost:
			h.submitReport(w, r, user, schemeID)
		default:
			methodNotAllowed(w)
		}
	default:
		endpointNotFound(w)
	}
}

// visibleScheme loads the scheme if the user may see it, writing the error response otherwise
func (h *V1Handler) visibleScheme(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) (*models.Scheme, bool) {
	scheme, err := h.schemeService.GetScheme(r.Context(), user, schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	return scheme, true
}

// authorizeSchemeOwner enforces owner-only scheme writes: the caller must be the
// scheme's foreman unless they are admin or system. Owner-only reads go through
// visibleScheme, which also admits enrolled subscribers.
func (h *V1Handler) authorizeSchemeOwner(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) bool {
	endpoint, found := authutils.FindEndpointPermission(r.Method, r.URL.Path)
	if !found || !endpoint.IsOwnershipRequired || r.Method == http.MethodGet {
		return true
	}

	scheme, ok := h.visibleScheme(w, r, user, schemeID)
	if !ok {
		return false
	}
	if !authutils.CanAccessResource(user, endpoint.Permission, scheme.ForemanID) {
		slog.Warn("Access denied: scheme is owned by another foreman",
			"user", user.UserID, "scheme", schemeID, "path", r.URL.Path, "method", r.Method)
		utils.RespondWithError(w, http.StatusForbidden, "Only the scheme's foreman may perform this action")
		return false
	}
	return true
}

func (h *V1Handler) listSchemes(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser) {
	query := r.URL.Query()
	schemes, err := h.schemeService.ListSchemes(r.Context(), user, query.Get("foremanId"), query.Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(schemes))
}

func (h *V1Handler) createScheme(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser) {
	var req models.CreateSchemeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	scheme, err := h.schemeService.CreateScheme(r.Context(), user.UserID, &req)
	if err != nil {
		auditOutcome(r, models.ResourceTypeSchemes, nil, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(r, models.ResourceTypeSchemes, &scheme.SchemeID, nil)
	utils.RespondWithSuccess(w, http.StatusCreated, scheme)
}

func (h *V1Handler) getScheme(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	scheme, ok := h.visibleScheme(w, r, user, schemeID)
	if !ok {
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, scheme)
}

func (h *V1Handler) updateScheme(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	var req models.UpdateSchemeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	scheme, err := h.schemeService.UpdateScheme(r.Context(), user, schemeID, &req)
	auditOutcome(r, models.ResourceTypeSchemes, &schemeID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, scheme)
}

func (h *V1Handler) respondWorkflowResult(w http.ResponseWriter, result *models.WorkflowActionResult) {
	if result.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	utils.RespondWithSuccess(w, http.StatusOK, result)
}

func (h *V1Handler) submitScheme(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	key := r.Header.Get(idempotencyKeyHeader)
	result, err := h.workflowEngine.SubmitScheme(r.Context(), user, schemeID, key)
	auditOutcome(r, models.ResourceTypeWorkflows, &schemeID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.respondWorkflowResult(w, result)
}

func (h *V1Handler) actOnWorkflow(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	var req models.WorkflowActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	key := r.Header.Get(idempotencyKeyHeader)
	result, err := h.workflowEngine.ActOnStep(r.Context(), schemeID, models.WorkflowAction(req.Action), user, req.Comment, key)
	auditOutcome(r, models.ResourceTypeWorkflows, &schemeID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.respondWorkflowResult(w, result)
}

func (h *V1Handler) getWorkflow(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if _, ok := h.visibleScheme(w, r, user, schemeID); !ok {
		return
	}
	view, err := h.workflowEngine.GetWorkflow(r.Context(), schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, view)
}

func (h *V1Handler) commenceScheme(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	var req models.CommenceSchemeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	scheme, certificate, err := h.schemeService.CommenceScheme(r.Context(), user, schemeID, req.StartDate)
	auditOutcome(r, models.ResourceTypeSchemes, &schemeID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, map[string]interface{}{
		"scheme":      scheme,
		"certificate": certificate,
	})
}

func (h *V1Handler) listEnrollments(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if _, ok := h.visibleScheme(w, r, user, schemeID); !ok {
		return
	}
	enrollments, err := h.schemeService.ListEnrollments(r.Context(), schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(enrollments))
}

func (h *V1Handler) enroll(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	var req models.EnrollSubscriberRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	enrollment, err := h.schemeService.Enroll(r.Context(), user, schemeID, req.UCFSIN)
	auditOutcome(r, models.ResourceTypeEnrollments, &schemeID, err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusCreated, enrollment)
}

func (h *V1Handler) listDocuments(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if _, ok := h.visibleScheme(w, r, user, schemeID); !ok {
		return
	}
	documents, err := h.documentService.ListSchemeDocuments(r.Context(), schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(documents))
}

func (h *V1Handler) documentSummary(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if _, ok := h.visibleScheme(w, r, user, schemeID); !ok {
		return
	}
	summary, err := h.documentService.DocumentStatusSummary(r.Context(), schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, summary)
}

// uploadDocument accepts a multipart form with a documentType field and a file part
func (h *V1Handler) uploadDocument(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.RespondWithError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the maximum document size")
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	docType := strings.TrimSpace(r.FormValue("documentType"))
	if docType == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "documentType is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	document, err := h.documentService.UploadDocument(r.Context(), user, schemeID, docType,
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		auditOutcome(r, models.ResourceTypeDocuments, nil, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(r, models.ResourceTypeDocuments, &document.DocumentID, nil)
	utils.RespondWithSuccess(w, http.StatusCreated, document)
}

func (h *V1Handler) listCertificates(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if _, ok := h.visibleScheme(w, r, user, schemeID); !ok {
		return
	}
	certificates, err := h.certificateService.ListSchemeCertificates(r.Context(), schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(certificates))
}

func (h *V1Handler) listReports(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	if _, ok := h.visibleScheme(w, r, user, schemeID); !ok {
		return
	}
	reports, err := h.reportService.ListSchemeReports(r.Context(), schemeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(reports))
}

func (h *V1Handler) submitReport(w http.ResponseWriter, r *http.Request, user *models.AuthenticatedUser, schemeID string) {
	var req models.SubmitMonthlyReportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.reportService.SubmitMonthlyReport(r.Context(), user, schemeID, &req)
	if err != nil {
		auditOutcome(r, models.ResourceTypeReports, nil, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(r, models.ResourceTypeReports, &report.ReportID, nil)
	utils.RespondWithSuccess(w, http.StatusCreated, report)
}
