package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

func (h *V1Handler) setSessionCookie(w http.ResponseWriter, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     h.auth.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

func (h *V1Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req models.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		auditOutcome(r, models.ResourceTypeAuth, nil, err)
		writeServiceError(w, r, err)
		return
	}

	if h.auth.CookieName != "" {
		h.setSessionCookie(w, resp.Token, resp.ExpiresAt)
	}
	auditOutcome(withActor(r, resp.User), models.ResourceTypeAuth, &resp.User.UserID, nil)
	utils.RespondWithSuccess(w, http.StatusOK, resp)
}

func (h *V1Handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if h.auth.CookieName != "" {
		h.setSessionCookie(w, "", time.Unix(0, 0))
	}
	utils.RespondWithSuccess(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *V1Handler) activate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req models.ActivateAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.authService.Activate(r.Context(), req.Token, req.Password)
	if err != nil {
		auditOutcome(r, models.ResourceTypeUsers, nil, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(withActor(r, user), models.ResourceTypeUsers, &user.UserID, nil)
	utils.RespondWithSuccess(w, http.StatusOK, user)
}

// withActor attributes the audit record of a public route to the account it
// authenticated or activated
func withActor(r *http.Request, user *models.User) *http.Request {
	actor := &models.AuthenticatedUser{UserID: user.UserID, Email: user.Email, Roles: []models.Role{user.Role}}
	return r.WithContext(authutils.SetAuthenticatedUser(r.Context(), actor))
}

func (h *V1Handler) getAssessmentQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(h.accessRequestService.GetAssessmentQuestions()))
}

func (h *V1Handler) getStatusBadges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.StatusBadges())
}

// Access request handlers

func (h *V1Handler) handleAccessRequests(w http.ResponseWriter, r *http.Request) {
	parts := utils.PathSegments(r.URL.Path, "/api/v1/access-requests")

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.createAccessRequest(w, r)
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.listAccessRequests(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getAccessRequest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "assessment" && r.Method == http.MethodPost:
		h.submitAssessment(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPut:
		h.reviewAccessRequest(w, r, parts[0])
	case len(parts) <= 2:
		methodNotAllowed(w)
	default:
		endpointNotFound(w)
	}
}

func (h *V1Handler) createAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccessRequestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	request, err := h.accessRequestService.CreateAccessRequest(r.Context(), &req)
	if err != nil {
		auditOutcome(r, models.ResourceTypeAccessRequests, nil, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(r, models.ResourceTypeAccessRequests, &request.RequestID, nil)
	utils.RespondWithSuccess(w, http.StatusCreated, request)
}

func (h *V1Handler) listAccessRequests(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}

	requests, err := h.accessRequestService.ListAccessRequests(r.Context(), statuses)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(requests))
}

func (h *V1Handler) getAccessRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	request, err := h.accessRequestService.GetAccessRequest(r.Context(), requestID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, request)
}

func (h *V1Handler) submitAssessment(w http.ResponseWriter, r *http.Request, requestID string) {
	var req models.SubmitAssessmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.accessRequestService.SubmitAssessment(r.Context(), requestID, req.Answers)
	if err != nil {
		auditOutcome(r, models.ResourceTypeAccessRequests, &requestID, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(r, models.ResourceTypeAccessRequests, &requestID, nil)
	utils.RespondWithSuccess(w, http.StatusOK, result)
}

func (h *V1Handler) reviewAccessRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.accessRequestService.ReviewAccessRequest(r.Context(), requestID, user.UserID, &req)
	if err != nil {
		auditOutcome(r, models.ResourceTypeAccessRequests, &requestID, err)
		writeServiceError(w, r, err)
		return
	}
	auditOutcome(r, models.ResourceTypeAccessRequests, &requestID, nil)
	utils.RespondWithSuccess(w, http.StatusOK, resp)
}

// User handlers

func (h *V1Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	parts := utils.PathSegments(r.URL.Path, "/api/v1/users")
	switch {
	case len(parts) == 0:
		users, err := h.userService.ListUsers(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		utils.RespondWithSuccess(w, http.StatusOK, models.NewCollectionResponse(users))
	case len(parts) == 1 && parts[0] == "me":
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		h.getUser(w, r, user.UserID)
	case len(parts) == 1:
		h.getUser(w, r, parts[0])
	default:
		endpointNotFound(w)
	}
}

func (h *V1Handler) getUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, user)
}
