package services

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/storage"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testServices wires every service against one in-memory database
type testServices struct {
	db      *gorm.DB
	catalog *config.Catalog
	blobs   *storage.BlobStore
	certs   *CertificateService
	schemes *SchemeService
	engine  *WorkflowEngine
	docs    *DocumentService
	scores  *ChitScoreService
	reports *ReportService
	cache   *memoryCache
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := SetupSQLiteTestDB(t)
	catalog := config.DefaultCatalog()
	blobs, err := storage.NewBlobStore(afero.NewMemMapFs(), "/blobs")
	require.NoError(t, err)

	certs := NewCertificateService(db)
	cache := newMemoryCache()
	scores := NewChitScoreService(db, cache, 0)
	return &testServices{
		db:      db,
		catalog: catalog,
		blobs:   blobs,
		certs:   certs,
		schemes: NewSchemeService(db, certs),
		engine:  NewWorkflowEngine(db, catalog, certs),
		docs:    NewDocumentService(db, catalog, blobs, 1<<20),
		scores:  scores,
		reports: NewReportService(db, scores),
		cache:   cache,
	}
}

// memoryCache is a ScoreCache backed by a map
type memoryCache struct {
	data    map[string][]byte
	deletes int
	fail    bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.fail {
		return nil, false, fmt.Errorf("cache unavailable")
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.fail {
		return fmt.Errorf("cache unavailable")
	}
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
		c.deletes++
	}
	return nil
}

func createUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	id := uuid.New().String()
	user := &models.User{
		UserID: newID(prefixUser),
		Name:   string(role) + " " + id[:4],
		Email:  id[:8] + "@example.com",
		Role:   role,
		Active: true,
	}
	if role == models.RoleSubscriber {
		user.UCFSIN = ptr(newUCFSIN())
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func actorFor(user *models.User) *models.AuthenticatedUser {
	return &models.AuthenticatedUser{
		UserID: user.UserID,
		Email:  user.Email,
		Name:   user.Name,
		UCFSIN: user.UCFSINValue(),
		Roles:  []models.Role{user.Role},
	}
}

func validSchemeRequest() *models.CreateSchemeRequest {
	return &models.CreateSchemeRequest{
		Name:                "Diwali Savings 2026",
		ChitValue:           decimal.NewFromInt(100000),
		Installment:         decimal.NewFromInt(25000),
		NumberOfSubscribers: 4,
		DurationMonths:      4,
		CommissionPercent:   decimal.NewFromInt(5),
	}
}

func createDraftScheme(t *testing.T, ts *testServices, foreman *models.User) *models.Scheme {
	t.Helper()
	scheme, err := ts.schemes.CreateScheme(context.Background(), foreman.UserID, validSchemeRequest())
	require.NoError(t, err)
	return scheme
}

func uploadRequiredDocuments(t *testing.T, ts *testServices, foreman *models.User, schemeID string) []*models.Document {
	t.Helper()
	var docs []*models.Document
	for _, docType := range ts.catalog.RequiredDocumentTypes() {
		doc, err := ts.docs.UploadDocument(context.Background(), actorFor(foreman), schemeID, docType,
			docType+".pdf", "application/pdf", bytes.NewBufferString("%PDF "+docType+" "+schemeID))
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	return docs
}

func approveDocuments(t *testing.T, ts *testServices, admin *models.User, docs []*models.Document) {
	t.Helper()
	for _, doc := range docs {
		_, err := ts.docs.ReviewDocument(context.Background(), admin.UserID, doc.DocumentID, &models.ReviewRequest{Status: "approved"})
		require.NoError(t, err)
	}
}

// approvedScheme drives a new scheme through every workflow step
func approvedScheme(t *testing.T, ts *testServices, foreman, admin *models.User) *models.Scheme {
	t.Helper()
	ctx := context.Background()
	scheme := createDraftScheme(t, ts, foreman)
	docs := uploadRequiredDocuments(t, ts, foreman, scheme.SchemeID)
	_, err := ts.engine.SubmitScheme(ctx, actorFor(foreman), scheme.SchemeID, "")
	require.NoError(t, err)
	approveDocuments(t, ts, admin, docs)

	var result *models.WorkflowActionResult
	for range ts.catalog.Workflow {
		result, err = ts.engine.ActOnStep(ctx, scheme.SchemeID, models.WorkflowActionApprove, actorFor(admin), nil, "")
		require.NoError(t, err)
	}
	require.Equal(t, models.SchemeStatusApproved, result.Scheme.Status)
	return result.Scheme
}

// commencedScheme approves a scheme, fills every ticket and starts it in January 2026
func commencedScheme(t *testing.T, ts *testServices, foreman, admin *models.User) (*models.Scheme, []*models.User) {
	t.Helper()
	ctx := context.Background()
	scheme := approvedScheme(t, ts, foreman, admin)
	var subscribers []*models.User
	for i := 0; i < scheme.NumberOfSubscribers; i++ {
		sub := createUser(t, ts.db, models.RoleSubscriber)
		_, err := ts.schemes.Enroll(ctx, actorFor(foreman), scheme.SchemeID, sub.UCFSINValue())
		require.NoError(t, err)
		subscribers = append(subscribers, sub)
	}
	commenced, _, err := ts.schemes.CommenceScheme(ctx, actorFor(foreman), scheme.SchemeID, "2026-01-05")
	require.NoError(t, err)
	return commenced, subscribers
}
