package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/shared/audit"
	"github.com/chitbox-dev/chitfund-portal/storage"
	"github.com/chitbox-dev/chitfund-portal/v1/middleware"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/chitbox-dev/chitfund-portal/v1/services"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testCookieName = "chitfund_session"

type testV1Handler struct {
	handler *V1Handler
	db      *gorm.DB
	tokens  *authutils.TokenManager
	catalog *config.Catalog
	server  http.Handler
}

func newTestV1Handler(t *testing.T, customize func(*Options)) *testV1Handler {
	t.Helper()
	db := services.SetupSQLiteTestDB(t)
	tokens := authutils.NewTokenManager("handler-test-secret-0123456789abcdef", "chitfund-portal", time.Hour)
	blobs, err := storage.NewBlobStore(afero.NewMemMapFs(), "/documents")
	require.NoError(t, err)
	catalog := config.DefaultCatalog()

	opts := Options{
		Catalog: catalog,
		Tokens:  tokens,
		Blobs:   blobs,
		Auth: config.AuthConfig{
			CookieName:    testCookieName,
			ActivationTTL: 72 * time.Hour,
		},
		Storage: config.StorageConfig{MaxUploadBytes: 1 << 16},
	}
	if customize != nil {
		customize(&opts)
	}

	handler := NewV1Handler(db, opts)
	mux := http.NewServeMux()
	handler.SetupV1Routes(mux)

	jwt := middleware.NewJWTAuthMiddleware(tokens, testCookieName)
	authz := middleware.NewAuthorizationMiddleware()
	return &testV1Handler{
		handler: handler,
		db:      db,
		tokens:  tokens,
		catalog: catalog,
		server:  jwt.AuthenticateJWT(authz.AuthorizeRequest(mux)),
	}
}

func (th *testV1Handler) createUser(t *testing.T, role models.Role) *models.User {
	t.Helper()
	id := uuid.New().String()
	user := &models.User{
		UserID: "usr_" + id,
		Name:   string(role) + " " + id[:4],
		Email:  id[:8] + "@example.com",
		Role:   role,
		Active: true,
	}
	if role == models.RoleSubscriber {
		ucfsin := "UCF" + strings.ToUpper(id[:9])
		user.UCFSIN = &ucfsin
	}
	require.NoError(t, th.db.Create(user).Error)
	return user
}

func (th *testV1Handler) do(t *testing.T, user *models.User, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if user != nil {
		token, _, err := th.tokens.Issue(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	th.server.ServeHTTP(w, req)
	return w
}

func (th *testV1Handler) doJSON(t *testing.T, user *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return th.do(t, user, req)
}

func (th *testV1Handler) createScheme(t *testing.T, foreman *models.User) *models.Scheme {
	t.Helper()
	w := th.doJSON(t, foreman, http.MethodPost, "/api/v1/schemes", map[string]interface{}{
		"name":                "Pongal Savings",
		"chitValue":           "100000",
		"installment":         "25000",
		"numberOfSubscribers": 4,
		"durationMonths":      4,
		"commissionPercent":   "5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var scheme models.Scheme
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scheme))
	return &scheme
}

func uploadRequest(t *testing.T, schemeID, docType, fileName string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if docType != "" {
		require.NoError(t, writer.WriteField("documentType", docType))
	}
	if content != nil {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schemes/"+schemeID+"/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestV1Handler_Auth(t *testing.T) {
	th := newTestV1Handler(t, nil)
	auth := services.NewAuthService(th.db, th.tokens)
	admin, err := auth.CreateAdmin(context.Background(), "Registrar", "registrar@example.com", "correct-horse-battery")
	require.NoError(t, err)

	t.Run("login sets the session cookie", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
			Identifier: "registrar@example.com",
			Password:   "correct-horse-battery",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, admin.UserID, resp.User.UserID)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, testCookieName, cookies[0].Name)
		assert.Equal(t, resp.Token, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	})

	t.Run("successful login is audited as the account", func(t *testing.T) {
		auditor := audit.NewDatabaseAuditor(th.db)
		previous := middleware.SetAuditor(auditor)
		defer middleware.SetAuditor(previous)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(
			`{"identifier":"registrar@example.com","password":"correct-horse-battery"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "198.51.100.20:4000"
		w := th.do(t, nil, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		auditor.Flush()

		logs, total, err := auditor.List(context.Background(), audit.LogFilter{TargetType: string(models.ResourceTypeAuth)})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		assert.Equal(t, admin.UserID, logs[0].ActorID)
		assert.Equal(t, "ADMIN", logs[0].ActorType)
		assert.Equal(t, audit.StatusSuccess, logs[0].Status)
	})

	t.Run("session cookie authenticates later requests", func(t *testing.T) {
		token, _, err := th.tokens.Issue(admin)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
		w := th.do(t, nil, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), admin.UserID)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
			Identifier: "registrar@example.com",
			Password:   "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"identifier": "registrar@example.com",
			"password":   "x",
			"otp":        "123456",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodPost, "/api/v1/auth/logout", nil)
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Empty(t, cookies[0].Value)
		assert.True(t, cookies[0].MaxAge < 0)
	})

	t.Run("login is rejected on GET", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodGet, "/api/v1/auth/login", nil)
		assert.NotEqual(t, http.StatusOK, w.Code)
	})
}

func TestV1Handler_PublicEndpoints(t *testing.T) {
	th := newTestV1Handler(t, nil)

	t.Run("assessment questions are public", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodGet, "/api/v1/assessment/questions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp models.CollectionResponse[models.AssessmentQuestion]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, len(th.catalog.Assessment.Questions), resp.Count)
	})

	t.Run("status badges are public", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodGet, "/api/v1/status-badges", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var badges map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &badges))
		assert.Equal(t, models.StatusBadgeClass("approved"), badges["approved"])
	})

	t.Run("access request can be created without a session", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodPost, "/api/v1/access-requests", models.CreateAccessRequestRequest{
			Name:          "Lakshmi Chits",
			Email:         "ops@lakshmichits.example",
			RequestedRole: "foreman",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var request models.AccessRequest
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
		assert.NotEmpty(t, request.RequestID)
	})

	t.Run("invalid requested role fails validation", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodPost, "/api/v1/access-requests", models.CreateAccessRequestRequest{
			Name:          "Someone",
			Email:         "someone@example.com",
			RequestedRole: "admin",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("listing access requests needs a session", func(t *testing.T) {
		w := th.doJSON(t, nil, http.MethodGet, "/api/v1/access-requests", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestV1Handler_Schemes(t *testing.T) {
	th := newTestV1Handler(t, nil)
	foreman := th.createUser(t, models.RoleForeman)
	otherForeman := th.createUser(t, models.RoleForeman)
	subscriber := th.createUser(t, models.RoleSubscriber)
	admin := th.createUser(t, models.RoleAdmin)

	scheme := th.createScheme(t, foreman)
	assert.Equal(t, models.SchemeStatusDraft, scheme.Status)
	assert.Equal(t, foreman.UserID, scheme.ForemanID)

	t.Run("subscriber cannot create schemes", func(t *testing.T) {
		w := th.doJSON(t, subscriber, http.MethodPost, "/api/v1/schemes", map[string]interface{}{"name": "x"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("owner and admin can read the scheme", func(t *testing.T) {
		for _, user := range []*models.User{foreman, admin} {
			w := th.doJSON(t, user, http.MethodGet, "/api/v1/schemes/"+scheme.SchemeID, nil)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		}
	})

	t.Run("another foreman cannot read the scheme", func(t *testing.T) {
		w := th.doJSON(t, otherForeman, http.MethodGet, "/api/v1/schemes/"+scheme.SchemeID, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = th.doJSON(t, otherForeman, http.MethodGet, "/api/v1/schemes/"+scheme.SchemeID+"/documents", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("another foreman cannot modify the scheme", func(t *testing.T) {
		name := "Hijacked"
		w := th.doJSON(t, otherForeman, http.MethodPut, "/api/v1/schemes/"+scheme.SchemeID, models.UpdateSchemeRequest{
			Version: scheme.Version,
			Name:    &name,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = th.doJSON(t, otherForeman, http.MethodPost, "/api/v1/schemes/"+scheme.SchemeID+"/submit", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = th.do(t, otherForeman, uploadRequest(t, scheme.SchemeID, th.catalog.RequiredDocumentTypes()[0], "a.pdf", []byte("%PDF")))
		assert.Equal(t, http.StatusForbidden, w.Code)

		var stored models.Scheme
		require.NoError(t, th.db.First(&stored, "scheme_id = ?", scheme.SchemeID).Error)
		assert.NotEqual(t, name, stored.Name)
		assert.Equal(t, models.SchemeStatusDraft, stored.Status)
	})

	t.Run("unknown scheme is not found", func(t *testing.T) {
		w := th.doJSON(t, admin, http.MethodGet, "/api/v1/schemes/sch_missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("listing only returns own schemes for a foreman", func(t *testing.T) {
		th.createScheme(t, otherForeman)
		w := th.doJSON(t, foreman, http.MethodGet, "/api/v1/schemes", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp models.CollectionResponse[models.Scheme]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, scheme.SchemeID, resp.Items[0].SchemeID)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		name := "Renamed"
		w := th.doJSON(t, foreman, http.MethodPut, "/api/v1/schemes/"+scheme.SchemeID, models.UpdateSchemeRequest{
			Version: scheme.Version,
			Name:    &name,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = th.doJSON(t, foreman, http.MethodPut, "/api/v1/schemes/"+scheme.SchemeID, models.UpdateSchemeRequest{
			Version: scheme.Version,
			Name:    &name,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown nested resource is not found", func(t *testing.T) {
		w := th.doJSON(t, foreman, http.MethodGet, "/api/v1/schemes/"+scheme.SchemeID+"/unknown", nil)
		assert.NotEqual(t, http.StatusOK, w.Code)
	})
}

func TestV1Handler_Documents(t *testing.T) {
	th := newTestV1Handler(t, func(o *Options) { o.Storage.MaxUploadBytes = 1024 })
	foreman := th.createUser(t, models.RoleForeman)
	admin := th.createUser(t, models.RoleAdmin)
	scheme := th.createScheme(t, foreman)
	docType := th.catalog.RequiredDocumentTypes()[0]
	content := []byte("%PDF-1.4 bye-laws")

	var document models.Document
	t.Run("upload stores the document", func(t *testing.T) {
		w := th.do(t, foreman, uploadRequest(t, scheme.SchemeID, docType, `C:\scans\bylaws.pdf`, content))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &document))
		assert.Equal(t, "bylaws.pdf", document.FileName)
		assert.Equal(t, models.StatusPending, document.Status)
		assert.Len(t, document.SHA256, 64)
	})

	t.Run("content download returns the stored bytes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+document.DocumentID+"/content", nil)
		w := th.do(t, admin, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, content, w.Body.Bytes())
		assert.Equal(t, document.SHA256, w.Header().Get("X-Content-SHA256"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "bylaws.pdf")
	})

	t.Run("missing file is a bad request", func(t *testing.T) {
		w := th.do(t, foreman, uploadRequest(t, scheme.SchemeID, docType, "", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing document type is a bad request", func(t *testing.T) {
		w := th.do(t, foreman, uploadRequest(t, scheme.SchemeID, "", "a.pdf", content))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized upload is rejected", func(t *testing.T) {
		w := th.do(t, foreman, uploadRequest(t, scheme.SchemeID, docType, "big.pdf", bytes.Repeat([]byte("x"), 4096)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("foreman cannot review documents", func(t *testing.T) {
		w := th.doJSON(t, foreman, http.MethodPut, "/api/v1/documents/"+document.DocumentID+"/review",
			models.ReviewRequest{Status: "approved"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin approves the document", func(t *testing.T) {
		w := th.doJSON(t, admin, http.MethodPut, "/api/v1/documents/"+document.DocumentID+"/review",
			models.ReviewRequest{Status: "approved"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = th.doJSON(t, foreman, http.MethodGet, "/api/v1/schemes/"+scheme.SchemeID+"/documents/summary", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var summary models.DocumentSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
		assert.NotContains(t, summary.MissingRequired, docType)
	})
}

func TestV1Handler_Workflow(t *testing.T) {
	th := newTestV1Handler(t, nil)
	foreman := th.createUser(t, models.RoleForeman)
	admin := th.createUser(t, models.RoleAdmin)
	scheme := th.createScheme(t, foreman)
	submitPath := "/api/v1/schemes/" + scheme.SchemeID + "/submit"

	t.Run("submit without documents fails validation", func(t *testing.T) {
		w := th.doJSON(t, foreman, http.MethodPost, submitPath, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, errorMessage(t, w), th.catalog.RequiredDocumentTypes()[0])
	})

	for _, docType := range th.catalog.RequiredDocumentTypes() {
		w := th.do(t, foreman, uploadRequest(t, scheme.SchemeID, docType, docType+".pdf", []byte("%PDF "+docType)))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	t.Run("submit replays with the same idempotency key", func(t *testing.T) {
		req := func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, submitPath, nil)
			r.Header.Set(idempotencyKeyHeader, "submit-once")
			return r
		}
		first := th.do(t, foreman, req())
		require.Equal(t, http.StatusOK, first.Code, first.Body.String())
		assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

		second := th.do(t, foreman, req())
		require.Equal(t, http.StatusOK, second.Code, second.Body.String())
		assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	})

	t.Run("foreman cannot act on workflow steps", func(t *testing.T) {
		w := th.doJSON(t, foreman, http.MethodPost, "/api/v1/schemes/"+scheme.SchemeID+"/workflow/actions",
			models.WorkflowActionRequest{Action: "approve"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown action fails validation", func(t *testing.T) {
		w := th.doJSON(t, admin, http.MethodPost, "/api/v1/schemes/"+scheme.SchemeID+"/workflow/actions",
			models.WorkflowActionRequest{Action: "escalate"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("request changes moves the scheme back to the foreman", func(t *testing.T) {
		comment := "Bye-laws are unsigned"
		w := th.doJSON(t, admin, http.MethodPost, "/api/v1/schemes/"+scheme.SchemeID+"/workflow/actions",
			models.WorkflowActionRequest{Action: "request_changes", Comment: &comment})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = th.doJSON(t, foreman, http.MethodGet, "/api/v1/schemes/"+scheme.SchemeID+"/workflow", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var view models.WorkflowView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		require.NotNil(t, view.CurrentStep)
		assert.Equal(t, models.StepStatusChangesRequested, view.CurrentStep.Status)
	})
}

func TestV1Handler_ChitScore(t *testing.T) {
	th := newTestV1Handler(t, nil)
	subscriber := th.createUser(t, models.RoleSubscriber)
	other := th.createUser(t, models.RoleSubscriber)
	foreman := th.createUser(t, models.RoleForeman)
	admin := th.createUser(t, models.RoleAdmin)

	t.Run("subscriber reads own score", func(t *testing.T) {
		w := th.doJSON(t, subscriber, http.MethodGet, "/api/v1/chit-score/me", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var score models.ChitScore
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &score))
		assert.Equal(t, subscriber.UserID, score.UserID)
	})

	t.Run("subscriber cannot read another score", func(t *testing.T) {
		w := th.doJSON(t, subscriber, http.MethodGet, "/api/v1/chit-score/"+other.UserID, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("foreman reads subscriber scores only", func(t *testing.T) {
		w := th.doJSON(t, foreman, http.MethodGet, "/api/v1/chit-score/"+other.UserID, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = th.doJSON(t, foreman, http.MethodGet, "/api/v1/chit-score/"+admin.UserID, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin reads any score", func(t *testing.T) {
		w := th.doJSON(t, admin, http.MethodGet, "/api/v1/chit-score/"+subscriber.UserID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestV1Handler_AuditLogs(t *testing.T) {
	t.Run("remote audit sink cannot be listed", func(t *testing.T) {
		th := newTestV1Handler(t, nil)
		admin := th.createUser(t, models.RoleAdmin)
		w := th.doJSON(t, admin, http.MethodGet, "/api/v1/audit-logs", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("database audit logs are paged", func(t *testing.T) {
		th := newTestV1Handler(t, nil)
		th.handler.auditLogs = audit.NewDatabaseAuditor(th.db)
		admin := th.createUser(t, models.RoleAdmin)

		for i := 0; i < 3; i++ {
			require.NoError(t, th.db.Create(&audit.AuditLog{
				ID:         uuid.New().String(),
				Timestamp:  time.Now(),
				Status:     "success",
				ActorType:  "ADMIN",
				ActorID:    admin.UserID,
				TargetType: "SCHEMES",
			}).Error)
		}

		w := th.doJSON(t, admin, http.MethodGet, "/api/v1/audit-logs?limit=2", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			Items []audit.AuditLog `json:"items"`
			Total int64            `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Items, 2)
		assert.EqualValues(t, 3, resp.Total)

		w = th.doJSON(t, admin, http.MethodGet, "/api/v1/audit-logs?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("foreman cannot read audit logs", func(t *testing.T) {
		th := newTestV1Handler(t, nil)
		foreman := th.createUser(t, models.RoleForeman)
		w := th.doJSON(t, foreman, http.MethodGet, "/api/v1/audit-logs", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: scheme x", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad", models.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: stale", models.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: wrong state", models.ErrInvalidTransition), http.StatusConflict},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrUnauthorized, http.StatusUnauthorized},
		{models.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{models.ErrIntegrity, http.StatusInternalServerError},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "disk on fire")
			}
		})
	}
}

func TestRouteTemplates(t *testing.T) {
	seen := map[string]bool{}
	for _, route := range RouteTemplates() {
		assert.False(t, seen[route], "duplicate route %s", route)
		seen[route] = true
	}
	assert.True(t, seen["/api/v1/schemes/{id}/workflow/actions"])
}
