package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/storage"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"gorm.io/gorm"
)

// DocumentService handles scheme document uploads and their review
type DocumentService struct {
	db       *gorm.DB
	catalog  *config.Catalog
	blobs    *storage.BlobStore
	maxBytes int64
}

// NewDocumentService creates a new document service
func NewDocumentService(db *gorm.DB, catalog *config.Catalog, blobs *storage.BlobStore, maxBytes int64) *DocumentService {
	return &DocumentService{db: db, catalog: catalog, blobs: blobs, maxBytes: maxBytes}
}

// UploadDocument stores a document for a scheme. An earlier pending or rejected
// upload of the same type is replaced; an approved one must not be replaced.
func (s *DocumentService) UploadDocument(ctx context.Context, actor *models.AuthenticatedUser, schemeID, docType, fileName, contentType string, content io.Reader) (*models.Document, error) {
	if _, ok := s.catalog.DocumentType(docType); !ok {
		return nil, validationError("unknown document type %q", docType)
	}
	fileName = path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, validationError("fileName is required")
	}
	if len(fileName) > models.MaxFileNameLength {
		return nil, validationError("fileName must be at most %d characters", models.MaxFileNameLength)
	}

	db := s.db.WithContext(ctx)
	scheme, err := loadScheme(db, schemeID)
	if err != nil {
		return nil, err
	}
	if err := requireSchemeOwner(actor, scheme); err != nil {
		return nil, err
	}
	if !scheme.AcceptsDocuments() {
		return nil, transitionError("documents cannot be uploaded for a scheme in status %s", scheme.Status)
	}

	blob, err := s.blobs.Put(content, s.maxBytes)
	if err != nil {
		return nil, err
	}
	if blob.Size == 0 {
		return nil, validationError("document is empty")
	}

	doc := &models.Document{
		DocumentID:   newID(prefixDocument),
		SchemeID:     schemeID,
		DocumentType: docType,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    blob.Size,
		SHA256:       blob.SHA256,
		StorageKey:   blob.Key,
		Status:       models.StatusPending,
		UploadedBy:   actor.UserID,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var approved int64
		if err := tx.Model(&models.Document{}).
			Where("scheme_id = ? AND document_type = ? AND status = ?", schemeID, docType, models.StatusApproved).
			Count(&approved).Error; err != nil {
			return fmt.Errorf("failed to check documents: %w", err)
		}
		if approved > 0 {
			return transitionError("an approved %s document already exists", docType)
		}

		if err := tx.Where("scheme_id = ? AND document_type = ? AND status IN ?",
			schemeID, docType, []models.Status{models.StatusPending, models.StatusRejected}).
			Delete(&models.Document{}).Error; err != nil {
			return fmt.Errorf("failed to replace previous document: %w", err)
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Document uploaded", "documentID", doc.DocumentID, "schemeID", schemeID, "type", docType, "sha256", doc.SHA256)
	return doc, nil
}

// GetDocument retrieves a document record by ID
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "document_id = ?", documentID).Error; err != nil {
		return nil, notFound(err, "document", documentID)
	}
	return &doc, nil
}

// ReviewDocument approves or rejects a pending document
func (s *DocumentService) ReviewDocument(ctx context.Context, reviewerID, documentID string, req *models.ReviewRequest) (*models.Document, error) {
	status := models.Status(req.Status)
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, validationError("status must be one of [approved rejected]")
	}
	review := trimmedComment(req.Review)
	if status == models.StatusRejected && review == nil {
		return nil, validationError("review is required when rejecting a document")
	}

	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&doc, "document_id = ?", documentID).Error; err != nil {
			return notFound(err, "document", documentID)
		}
		if doc.Status != models.StatusPending {
			return transitionError("document %s is already %s", documentID, doc.Status)
		}
		result := tx.Model(&models.Document{}).
			Where("document_id = ? AND status = ?", documentID, models.StatusPending).
			Updates(map[string]interface{}{
				"status":      status,
				"review":      review,
				"reviewed_by": reviewerID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to review document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: document %s was reviewed concurrently", models.ErrConflict, documentID)
		}
		doc.Status = status
		doc.Review = review
		doc.ReviewedBy = &reviewerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Document reviewed", "documentID", documentID, "status", status, "reviewerID", reviewerID)
	return &doc, nil
}

// OpenDocument returns a document and its content after checking the stored hash
func (s *DocumentService) OpenDocument(ctx context.Context, documentID string) (*models.Document, []byte, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.blobs.ReadVerified(doc.StorageKey, doc.SHA256)
	if err != nil {
		slog.Error("Document content unavailable", "documentID", documentID, "error", err)
		return nil, nil, err
	}
	return doc, content, nil
}

// VerifyDocument recomputes the content hash of a stored document
func (s *DocumentService) VerifyDocument(ctx context.Context, documentID string) (*models.Document, string, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, "", err
	}
	actual, err := s.blobs.Verify(doc.StorageKey, doc.SHA256)
	return doc, actual, err
}

// ListSchemeDocuments lists the documents of a scheme, newest first
func (s *DocumentService) ListSchemeDocuments(ctx context.Context, schemeID string) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).
		Where("scheme_id = ?", schemeID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DocumentStatusSummary reports the latest review state of every catalog document type
func (s *DocumentService) DocumentStatusSummary(ctx context.Context, schemeID string) (*models.DocumentSummary, error) {
	docs, err := s.ListSchemeDocuments(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]models.Document, len(docs))
	for _, d := range docs {
		if _, seen := latest[d.DocumentType]; !seen {
			latest[d.DocumentType] = d
		}
	}

	summary := &models.DocumentSummary{
		SchemeID:        schemeID,
		Types:           make([]models.DocumentTypeStatus, 0, len(s.catalog.DocumentTypes)),
		MissingRequired: []string{},
		AllApproved:     true,
	}
	for _, dt := range s.catalog.DocumentTypes {
		entry := models.DocumentTypeStatus{
			DocumentType: dt.Key,
			Name:         dt.Name,
			Required:     dt.Required,
			Badge:        models.BadgeSecondary,
		}
		doc, ok := latest[dt.Key]
		if ok {
			status := doc.Status
			id := doc.DocumentID
			entry.Status = &status
			entry.DocumentID = &id
			entry.Badge = models.StatusBadgeClass(string(status))
		}
		if dt.Required {
			if !ok || doc.Status == models.StatusRejected {
				summary.MissingRequired = append(summary.MissingRequired, dt.Key)
			}
			if !ok || doc.Status != models.StatusApproved {
				summary.AllApproved = false
			}
		}
		summary.Types = append(summary.Types, entry)
	}
	return summary, nil
}
