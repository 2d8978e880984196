package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"gorm.io/gorm"
)

// certificateNumberAttempts bounds retries when two issuers race for a number
const certificateNumberAttempts = 3

var certificateTemplates = map[models.CertificateType]*template.Template{
	models.CertificateTypePSO: template.Must(template.New("pso").Parse(`PRIOR SANCTION ORDER
(Section 4 of the Chit Funds Act, 1982)

Order No.        : {{.Number}}
Date of issue    : {{.IssuedAt}}

Sanction is accorded to {{.ForemanName}} to start the chit
"{{.SchemeName}}" (scheme {{.SchemeID}}) on the following terms:

  Chit value            : INR {{.ChitValue}}
  Monthly installment   : INR {{.Installment}}
  Number of subscribers : {{.NumberOfSubscribers}}
  Duration              : {{.DurationMonths}} months
  Foreman commission    : {{.CommissionPercent}}%

This order lapses if the chit does not commence within six months.
Issued by {{.IssuedBy}}
`)),
	models.CertificateTypeForm7: template.Must(template.New("form7").Parse(`FORM 7
CERTIFICATE OF COMMENCEMENT
(Section 9 of the Chit Funds Act, 1982)

Certificate No.  : {{.Number}}
Date of issue    : {{.IssuedAt}}
PSO reference    : {{.PSONumber}}

It is certified that the chit "{{.SchemeName}}" (scheme {{.SchemeID}})
conducted by {{.ForemanName}} has commenced on {{.StartDate}} with
{{.Enrollments}} of {{.NumberOfSubscribers}} tickets subscribed.

  Chit value            : INR {{.ChitValue}}
  Monthly installment   : INR {{.Installment}}
  Duration              : {{.DurationMonths}} months

Issued by {{.IssuedBy}}
`)),
}

// certificateData holds preformatted values for the certificate templates
type certificateData struct {
	Number              string
	IssuedAt            string
	IssuedBy            string
	SchemeID            string
	SchemeName          string
	ForemanName         string
	ChitValue           string
	Installment         string
	NumberOfSubscribers int
	DurationMonths      int
	CommissionPercent   string
	PSONumber           string
	StartDate           string
	Enrollments         int64
}

// CertificateService issues and verifies regulatory certificates
type CertificateService struct {
	db *gorm.DB
}

// NewCertificateService creates a new certificate service
func NewCertificateService(db *gorm.DB) *CertificateService {
	return &CertificateService{db: db}
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// issue renders and stores a certificate inside the caller's transaction.
// Numbers are PREFIX/YYYY/NNNNNN with a sequence per type per year.
func (s *CertificateService) issue(tx *gorm.DB, scheme *models.Scheme, certType models.CertificateType, issuedBy string, now time.Time) (*models.Certificate, error) {
	tmpl, ok := certificateTemplates[certType]
	if !ok {
		return nil, fmt.Errorf("unknown certificate type %q", certType)
	}

	var foreman models.User
	foremanName := scheme.ForemanID
	if err := tx.First(&foreman, "user_id = ?", scheme.ForemanID).Error; err == nil {
		foremanName = foreman.Name
	}

	var enrollments int64
	if err := tx.Model(&models.Enrollment{}).Where("scheme_id = ?", scheme.SchemeID).Count(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to count enrollments: %w", err)
	}

	data := certificateData{
		IssuedAt:            now.UTC().Format("02 Jan 2006"),
		IssuedBy:            issuedBy,
		SchemeID:            scheme.SchemeID,
		SchemeName:          scheme.Name,
		ForemanName:         foremanName,
		ChitValue:           scheme.ChitValue.StringFixed(2),
		Installment:         scheme.Installment.StringFixed(2),
		NumberOfSubscribers: scheme.NumberOfSubscribers,
		DurationMonths:      scheme.DurationMonths,
		CommissionPercent:   scheme.CommissionPercent.String(),
		Enrollments:         enrollments,
	}
	if scheme.PSONumber != nil {
		data.PSONumber = *scheme.PSONumber
	}
	if scheme.StartDate != nil {
		data.StartDate = scheme.StartDate.Format("02 Jan 2006")
	}

	prefix := fmt.Sprintf("%s/%04d/", certType.NumberPrefix(), now.Year())

	for attempt := 0; attempt < certificateNumberAttempts; attempt++ {
		var count int64
		if err := tx.Model(&models.Certificate{}).
			Where("type = ? AND number LIKE ?", certType, prefix+"%").
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count certificates: %w", err)
		}
		data.Number = fmt.Sprintf("%s%06d", prefix, count+1+int64(attempt))

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to render certificate: %w", err)
		}
		body := buf.String()

		cert := &models.Certificate{
			CertificateID: newID(prefixCertificate),
			SchemeID:      scheme.SchemeID,
			Type:          certType,
			Number:        data.Number,
			Body:          body,
			SHA256:        hashBody(body),
			IssuedBy:      issuedBy,
			IssuedAt:      now,
		}

		// Savepoint so a number collision does not abort the outer transaction
		err := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(cert).Error
		})
		if err == nil {
			slog.Info("Certificate issued", "certificateID", cert.CertificateID, "number", cert.Number, "schemeID", scheme.SchemeID)
			return cert, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to store certificate: %w", err)
		}
		slog.Warn("Certificate number taken, retrying", "number", data.Number)
	}

	return nil, fmt.Errorf("%w: could not allocate a %s certificate number", models.ErrConflict, certType)
}

// GetCertificate retrieves a certificate by ID
func (s *CertificateService) GetCertificate(ctx context.Context, certificateID string) (*models.Certificate, error) {
	var cert models.Certificate
	if err := s.db.WithContext(ctx).First(&cert, "certificate_id = ?", certificateID).Error; err != nil {
		return nil, notFound(err, "certificate", certificateID)
	}
	return &cert, nil
}

// ListSchemeCertificates retrieves the certificates issued for a scheme, oldest first
func (s *CertificateService) ListSchemeCertificates(ctx context.Context, schemeID string) ([]models.Certificate, error) {
	var certs []models.Certificate
	if err := s.db.WithContext(ctx).
		Where("scheme_id = ?", schemeID).
		Order("issued_at ASC").
		Find(&certs).Error; err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, nil
}

// VerifyCertificate recomputes the body hash of a stored certificate
func (s *CertificateService) VerifyCertificate(ctx context.Context, certificateID string) (*models.CertificateVerification, error) {
	cert, err := s.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	actual := hashBody(cert.Body)
	return &models.CertificateVerification{
		CertificateID: cert.CertificateID,
		Number:        cert.Number,
		Valid:         actual == cert.SHA256,
		ExpectedHash:  cert.SHA256,
		ActualHash:    actual,
	}, nil
}
