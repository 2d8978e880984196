package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SchemeService manages chit schemes, enrollments and commencement
type SchemeService struct {
	db    *gorm.DB
	certs *CertificateService
}

// NewSchemeService creates a new scheme service
func NewSchemeService(db *gorm.DB, certs *CertificateService) *SchemeService {
	return &SchemeService{db: db, certs: certs}
}

// schemeTerms are the fields checked by the chit-fund rules
type schemeTerms struct {
	name        string
	chitValue   decimal.Decimal
	installment decimal.Decimal
	subscribers int
	duration    int
	commission  decimal.Decimal
}

func (t schemeTerms) validate() error {
	if strings.TrimSpace(t.name) == "" {
		return validationError("name is required")
	}
	if t.subscribers < 2 {
		return validationError("numberOfSubscribers must be at least 2")
	}
	if t.duration != t.subscribers {
		return validationError("durationMonths (%d) must equal numberOfSubscribers (%d)", t.duration, t.subscribers)
	}
	if !t.installment.IsPositive() {
		return validationError("installment must be positive")
	}
	expected := t.installment.Mul(decimal.NewFromInt(int64(t.subscribers)))
	if !t.chitValue.Equal(expected) {
		return validationError("chitValue must equal installment × numberOfSubscribers (%s)", expected.StringFixed(2))
	}
	if !t.commission.IsPositive() || t.commission.GreaterThan(decimal.NewFromInt(models.MaxCommissionPercent)) {
		return validationError("commissionPercent must be greater than 0 and at most %d", models.MaxCommissionPercent)
	}
	return nil
}

// canViewScheme applies row-level visibility: foremen see their own schemes,
// subscribers the schemes they are enrolled in, readers with scheme:read:all everything
func canViewScheme(tx *gorm.DB, actor *models.AuthenticatedUser, scheme *models.Scheme) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.HasPermission(models.PermissionReadAllSchemes) {
		return true, nil
	}
	if actor.IsForeman() && scheme.ForemanID == actor.UserID {
		return true, nil
	}
	if actor.IsSubscriber() {
		var count int64
		if err := tx.Model(&models.Enrollment{}).
			Where("scheme_id = ? AND subscriber_id = ?", scheme.SchemeID, actor.UserID).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("failed to check enrollment: %w", err)
		}
		return count > 0, nil
	}
	return false, nil
}

// requireSchemeOwner rejects actors that are not the scheme's foreman
func requireSchemeOwner(actor *models.AuthenticatedUser, scheme *models.Scheme) error {
	if actor == nil || scheme.ForemanID != actor.UserID {
		return fmt.Errorf("%w: scheme %s belongs to another foreman", models.ErrForbidden, scheme.SchemeID)
	}
	return nil
}

func loadScheme(tx *gorm.DB, schemeID string) (*models.Scheme, error) {
	var scheme models.Scheme
	if err := tx.First(&scheme, "scheme_id = ?", schemeID).Error; err != nil {
		return nil, notFound(err, "scheme", schemeID)
	}
	return &scheme, nil
}

// saveSchemeVersioned writes the given columns only if the stored version is
// still the one that was read, then bumps the version on the struct
func saveSchemeVersioned(tx *gorm.DB, scheme *models.Scheme, updates map[string]interface{}) error {
	updates["version"] = scheme.Version + 1
	updates["updated_at"] = time.Now()
	result := tx.Model(&models.Scheme{}).
		Where("scheme_id = ? AND version = ?", scheme.SchemeID, scheme.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update scheme: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scheme %s was modified concurrently", models.ErrConflict, scheme.SchemeID)
	}
	scheme.Version++
	return nil
}

// CreateScheme registers a new draft scheme for a foreman
func (s *SchemeService) CreateScheme(ctx context.Context, foremanID string, req *models.CreateSchemeRequest) (*models.Scheme, error) {
	terms := schemeTerms{
		name:        req.Name,
		chitValue:   req.ChitValue,
		installment: req.Installment,
		subscribers: req.NumberOfSubscribers,
		duration:    req.DurationMonths,
		commission:  req.CommissionPercent,
	}
	if err := terms.validate(); err != nil {
		return nil, err
	}

	scheme := &models.Scheme{
		SchemeID:            newID(prefixScheme),
		ForemanID:           foremanID,
		Name:                strings.TrimSpace(req.Name),
		ChitValue:           req.ChitValue,
		Installment:         req.Installment,
		NumberOfSubscribers: req.NumberOfSubscribers,
		DurationMonths:      req.DurationMonths,
		CommissionPercent:   req.CommissionPercent,
		Status:              models.SchemeStatusDraft,
		Version:             1,
	}
	if err := s.db.WithContext(ctx).Create(scheme).Error; err != nil {
		return nil, fmt.Errorf("failed to create scheme: %w", err)
	}

	slog.Info("Scheme created", "schemeID", scheme.SchemeID, "foremanID", foremanID)
	return scheme, nil
}

// UpdateScheme changes the terms of a draft scheme. req.Version must match the stored version.
func (s *SchemeService) UpdateScheme(ctx context.Context, actor *models.AuthenticatedUser, schemeID string, req *models.UpdateSchemeRequest) (*models.Scheme, error) {
	var scheme *models.Scheme
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		scheme, err = loadScheme(tx, schemeID)
		if err != nil {
			return err
		}
		if err := requireSchemeOwner(actor, scheme); err != nil {
			return err
		}
		if scheme.Version != req.Version {
			return fmt.Errorf("%w: scheme version is %d, request was based on %d", models.ErrConflict, scheme.Version, req.Version)
		}
		if !scheme.IsEditable() {
			return transitionError("scheme in status %s cannot be edited", scheme.Status)
		}

		terms := schemeTerms{
			name:        scheme.Name,
			chitValue:   scheme.ChitValue,
			installment: scheme.Installment,
			subscribers: scheme.NumberOfSubscribers,
			duration:    scheme.DurationMonths,
			commission:  scheme.CommissionPercent,
		}
		if req.Name != nil {
			terms.name = strings.TrimSpace(*req.Name)
		}
		if req.ChitValue != nil {
			terms.chitValue = *req.ChitValue
		}
		if req.Installment != nil {
			terms.installment = *req.Installment
		}
		if req.NumberOfSubscribers != nil {
			terms.subscribers = *req.NumberOfSubscribers
		}
		if req.DurationMonths != nil {
			terms.duration = *req.DurationMonths
		}
		if req.CommissionPercent != nil {
			terms.commission = *req.CommissionPercent
		}
		if err := terms.validate(); err != nil {
			return err
		}

		if err := saveSchemeVersioned(tx, scheme, map[string]interface{}{
			"name":                  terms.name,
			"chit_value":            terms.chitValue,
			"installment":           terms.installment,
			"number_of_subscribers": terms.subscribers,
			"duration_months":       terms.duration,
			"commission_percent":    terms.commission,
		}); err != nil {
			return err
		}
		scheme, err = loadScheme(tx, schemeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Scheme updated", "schemeID", schemeID, "version", scheme.Version)
	return scheme, nil
}

// GetScheme retrieves a scheme the actor is allowed to see
func (s *SchemeService) GetScheme(ctx context.Context, actor *models.AuthenticatedUser, schemeID string) (*models.Scheme, error) {
	db := s.db.WithContext(ctx)
	scheme, err := loadScheme(db, schemeID)
	if err != nil {
		return nil, err
	}
	ok, err := canViewScheme(db, actor, scheme)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: scheme %s", models.ErrForbidden, schemeID)
	}
	return scheme, nil
}

// ListSchemes lists the schemes visible to the actor, optionally filtered by foreman and status
func (s *SchemeService) ListSchemes(ctx context.Context, actor *models.AuthenticatedUser, foremanID string, status string) ([]models.Scheme, error) {
	query := s.db.WithContext(ctx).Model(&models.Scheme{})

	switch {
	case actor.HasPermission(models.PermissionReadAllSchemes):
		if foremanID != "" {
			query = query.Where("foreman_id = ?", foremanID)
		}
	case actor.IsForeman():
		query = query.Where("foreman_id = ?", actor.UserID)
	case actor.IsSubscriber():
		query = query.Where("scheme_id IN (?)",
			s.db.Model(&models.Enrollment{}).Select("scheme_id").Where("subscriber_id = ?", actor.UserID))
	default:
		return []models.Scheme{}, nil
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var schemes []models.Scheme
	if err := query.Order("created_at DESC").Find(&schemes).Error; err != nil {
		return nil, fmt.Errorf("failed to list schemes: %w", err)
	}
	return schemes, nil
}

// Enroll assigns a subscriber the next free ticket of an approved scheme
func (s *SchemeService) Enroll(ctx context.Context, actor *models.AuthenticatedUser, schemeID, ucfsin string) (*models.Enrollment, error) {
	ucfsin = strings.ToUpper(strings.TrimSpace(ucfsin))
	if ucfsin == "" {
		return nil, validationError("ucfsin is required")
	}

	var enrollment *models.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scheme, err := loadScheme(tx, schemeID)
		if err != nil {
			return err
		}
		if err := requireSchemeOwner(actor, scheme); err != nil {
			return err
		}
		if scheme.Status != models.SchemeStatusApproved {
			return transitionError("subscribers can only be enrolled in an approved scheme, status is %s", scheme.Status)
		}

		var subscriber models.User
		if err := tx.First(&subscriber, "ucfsin = ?", ucfsin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationError("no subscriber with UCFSIN %s", ucfsin)
			}
			return fmt.Errorf("failed to load subscriber: %w", err)
		}
		if subscriber.Role != models.RoleSubscriber {
			return validationError("user %s is not a subscriber", ucfsin)
		}

		var enrolled int64
		if err := tx.Model(&models.Enrollment{}).Where("scheme_id = ?", schemeID).Count(&enrolled).Error; err != nil {
			return fmt.Errorf("failed to count enrollments: %w", err)
		}
		if int(enrolled) >= scheme.NumberOfSubscribers {
			return fmt.Errorf("%w: scheme %s is full", models.ErrConflict, schemeID)
		}

		var maxTicket int
		if err := tx.Model(&models.Enrollment{}).
			Where("scheme_id = ?", schemeID).
			Select("COALESCE(MAX(ticket_number), 0)").
			Scan(&maxTicket).Error; err != nil {
			return fmt.Errorf("failed to read ticket numbers: %w", err)
		}

		enrollment = &models.Enrollment{
			EnrollmentID: newID(prefixEnrollment),
			SchemeID:     schemeID,
			SubscriberID: subscriber.UserID,
			UCFSIN:       ucfsin,
			TicketNumber: maxTicket + 1,
		}
		if err := tx.Create(enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s is already enrolled in scheme %s", models.ErrConflict, ucfsin, schemeID)
			}
			return fmt.Errorf("failed to create enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Subscriber enrolled", "schemeID", schemeID, "ucfsin", ucfsin, "ticket", enrollment.TicketNumber)
	return enrollment, nil
}

// ListEnrollments lists the enrollments of a scheme by ticket number
func (s *SchemeService) ListEnrollments(ctx context.Context, schemeID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := s.db.WithContext(ctx).
		Where("scheme_id = ?", schemeID).
		Order("ticket_number ASC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// CommenceScheme starts a fully subscribed approved scheme and issues its Form 7 certificate
func (s *SchemeService) CommenceScheme(ctx context.Context, actor *models.AuthenticatedUser, schemeID, startDate string) (*models.Scheme, *models.Certificate, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, nil, validationError("startDate must match the format 2006-01-02")
	}

	var scheme *models.Scheme
	var cert *models.Certificate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scheme, err = loadScheme(tx, schemeID)
		if err != nil {
			return err
		}
		if err := requireSchemeOwner(actor, scheme); err != nil {
			return err
		}
		if scheme.Status != models.SchemeStatusApproved {
			return transitionError("only an approved scheme can commence, status is %s", scheme.Status)
		}

		var enrolled int64
		if err := tx.Model(&models.Enrollment{}).Where("scheme_id = ?", schemeID).Count(&enrolled).Error; err != nil {
			return fmt.Errorf("failed to count enrollments: %w", err)
		}
		if int(enrolled) != scheme.NumberOfSubscribers {
			return validationError("scheme needs %d enrollments to commence, has %d", scheme.NumberOfSubscribers, enrolled)
		}

		scheme.StartDate = &start
		cert, err = s.certs.issue(tx, scheme, models.CertificateTypeForm7, actor.UserID, time.Now())
		if err != nil {
			return err
		}

		if err := saveSchemeVersioned(tx, scheme, map[string]interface{}{
			"status":       models.SchemeStatusCommenced,
			"start_date":   start,
			"form7_number": cert.Number,
		}); err != nil {
			return err
		}
		scheme.Status = models.SchemeStatusCommenced
		scheme.Form7Number = &cert.Number

		_, err = enqueueOutbox(tx, models.OutboxJobTypeCertificateIssued, schemeID, certificateIssuedEvent{
			CertificateID: cert.CertificateID,
			SchemeID:      schemeID,
			Type:          cert.Type,
			Number:        cert.Number,
			SHA256:        cert.SHA256,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("Scheme commenced", "schemeID", schemeID, "form7", cert.Number)
	return scheme, cert, nil
}

// certificateIssuedEvent announces a newly issued certificate
type certificateIssuedEvent struct {
	CertificateID string                 `json:"certificateId"`
	SchemeID      string                 `json:"schemeId"`
	Type          models.CertificateType `json:"type"`
	Number        string                 `json:"number"`
	SHA256        string                 `json:"sha256"`
}
