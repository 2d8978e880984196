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

// ReportService handles the monthly settlement reports of commenced schemes
type ReportService struct {
	db     *gorm.DB
	scores *ChitScoreService
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB, scores *ChitScoreService) *ReportService {
	return &ReportService{db: db, scores: scores}
}

// reportReviewedEvent announces the outcome of a report review
type reportReviewedEvent struct {
	ReportID   string              `json:"reportId"`
	SchemeID   string              `json:"schemeId"`
	Period     string              `json:"period"`
	Status     models.ReportStatus `json:"status"`
	ReviewedBy string              `json:"reviewedBy"`
}

// ReportFigures are the amounts derived from a scheme's terms and the auction prize
type ReportFigures struct {
	AuctionDiscount       decimal.Decimal
	ForemanCommission     decimal.Decimal
	DividendPerSubscriber decimal.Decimal
}

// ComputeReportFigures applies the settlement formulas. The dividend is the
// discount left after commission, shared equally and rounded to paise.
func ComputeReportFigures(scheme *models.Scheme, prize decimal.Decimal) ReportFigures {
	discount := scheme.ChitValue.Sub(prize)
	commission := scheme.ChitValue.Mul(scheme.CommissionPercent).Div(decimal.NewFromInt(100)).Round(2)
	distributable := discount.Sub(commission)
	if distributable.IsNegative() {
		distributable = decimal.Zero
	}
	dividend := distributable.Div(decimal.NewFromInt(int64(scheme.NumberOfSubscribers))).Round(2)
	return ReportFigures{
		AuctionDiscount:       discount,
		ForemanCommission:     commission,
		DividendPerSubscriber: dividend,
	}
}

// installmentNumber returns the 1-based installment month of period relative to start
func installmentNumber(start time.Time, period time.Time) int {
	return (period.Year()-start.Year())*12 + int(period.Month()) - int(start.Month()) + 1
}

// SubmitMonthlyReport records the settlement of one month of a commenced scheme.
// A rejected report for the same period is replaced.
func (s *ReportService) SubmitMonthlyReport(ctx context.Context, actor *models.AuthenticatedUser, schemeID string, req *models.SubmitMonthlyReportRequest) (*models.MonthlyReport, error) {
	period, err := time.Parse("2006-01", req.Period)
	if err != nil {
		return nil, validationError("period must match the format 2006-01")
	}
	if req.CollectedAmount.IsNegative() {
		return nil, validationError("collectedAmount must not be negative")
	}
	if req.PrizeAmount.IsNegative() {
		return nil, validationError("prizeAmount must not be negative")
	}

	winner := strings.ToUpper(strings.TrimSpace(req.WinnerUCFSIN))
	defaulters := models.StringList{}
	seen := map[string]bool{}
	for _, d := range req.DefaulterUCFSINs {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d != "" && !seen[d] {
			seen[d] = true
			defaulters = append(defaulters, d)
		}
	}

	var report *models.MonthlyReport
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scheme, err := loadScheme(tx, schemeID)
		if err != nil {
			return err
		}
		if err := requireSchemeOwner(actor, scheme); err != nil {
			return err
		}
		if scheme.Status != models.SchemeStatusCommenced || scheme.StartDate == nil {
			return transitionError("reports can only be submitted for a commenced scheme, status is %s", scheme.Status)
		}

		number := installmentNumber(*scheme.StartDate, period)
		if number < 1 || number > scheme.DurationMonths {
			return validationError("period %s is outside the scheme duration", req.Period)
		}
		if req.PrizeAmount.GreaterThan(scheme.ChitValue) {
			return validationError("prizeAmount must not exceed the chit value %s", scheme.ChitValue.StringFixed(2))
		}

		var enrollments []models.Enrollment
		if err := tx.Where("scheme_id = ?", schemeID).Find(&enrollments).Error; err != nil {
			return fmt.Errorf("failed to load enrollments: %w", err)
		}
		enrolled := make(map[string]bool, len(enrollments))
		for _, e := range enrollments {
			enrolled[e.UCFSIN] = true
		}
		if !enrolled[winner] {
			return validationError("winner %s is not enrolled in the scheme", winner)
		}
		for _, d := range defaulters {
			if !enrolled[d] {
				return validationError("defaulter %s is not enrolled in the scheme", d)
			}
		}

		var previousWin models.MonthlyReport
		err = tx.Where("scheme_id = ? AND winner_ucfsin = ? AND status <> ? AND period <> ?",
			schemeID, winner, models.ReportStatusRejected, req.Period).
			First(&previousWin).Error
		if err == nil {
			return validationError("%s already won the auction in %s", winner, previousWin.Period)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check previous winners: %w", err)
		}

		if err := tx.Where("scheme_id = ? AND period = ? AND status = ?", schemeID, req.Period, models.ReportStatusRejected).
			Delete(&models.MonthlyReport{}).Error; err != nil {
			return fmt.Errorf("failed to replace rejected report: %w", err)
		}

		figures := ComputeReportFigures(scheme, req.PrizeAmount)
		report = &models.MonthlyReport{
			ReportID:              newID(prefixReport),
			SchemeID:              schemeID,
			Period:                req.Period,
			InstallmentNumber:     number,
			CollectedAmount:       req.CollectedAmount,
			PrizeAmount:           req.PrizeAmount,
			AuctionDiscount:       figures.AuctionDiscount,
			ForemanCommission:     figures.ForemanCommission,
			DividendPerSubscriber: figures.DividendPerSubscriber,
			WinnerUCFSIN:          winner,
			DefaulterUCFSINs:      defaulters,
			Status:                models.ReportStatusSubmitted,
			SubmittedBy:           actor.UserID,
		}
		if err := tx.Create(report).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: a report for %s already exists", models.ErrConflict, req.Period)
			}
			return fmt.Errorf("failed to create report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Monthly report submitted", "reportID", report.ReportID, "schemeID", schemeID, "period", report.Period)
	return report, nil
}

// ReviewMonthlyReport accepts or rejects a submitted report. Accepting
// invalidates the cached chit scores of the scheme's subscribers.
func (s *ReportService) ReviewMonthlyReport(ctx context.Context, reviewerID, reportID string, req *models.ReviewRequest) (*models.MonthlyReport, error) {
	status := models.ReportStatus(req.Status)
	if status != models.ReportStatusAccepted && status != models.ReportStatusRejected {
		return nil, validationError("status must be one of [accepted rejected]")
	}
	review := trimmedComment(req.Review)
	if status == models.ReportStatusRejected && review == nil {
		return nil, validationError("review is required when rejecting a report")
	}

	var report models.MonthlyReport
	var subscriberIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&report, "report_id = ?", reportID).Error; err != nil {
			return notFound(err, "report", reportID)
		}
		if report.Status != models.ReportStatusSubmitted {
			return transitionError("report %s is already %s", reportID, report.Status)
		}

		result := tx.Model(&models.MonthlyReport{}).
			Where("report_id = ? AND status = ?", reportID, models.ReportStatusSubmitted).
			Updates(map[string]interface{}{
				"status":      status,
				"review":      review,
				"reviewed_by": reviewerID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to review report: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: report %s was reviewed concurrently", models.ErrConflict, reportID)
		}
		report.Status = status
		report.Review = review
		report.ReviewedBy = &reviewerID

		if status == models.ReportStatusAccepted {
			if err := tx.Model(&models.Enrollment{}).
				Where("scheme_id = ?", report.SchemeID).
				Pluck("subscriber_id", &subscriberIDs).Error; err != nil {
				return fmt.Errorf("failed to load subscribers: %w", err)
			}
		}

		_, err := enqueueOutbox(tx, models.OutboxJobTypeReportReviewed, report.SchemeID, reportReviewedEvent{
			ReportID:   report.ReportID,
			SchemeID:   report.SchemeID,
			Period:     report.Period,
			Status:     status,
			ReviewedBy: reviewerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.scores != nil {
		s.scores.Invalidate(ctx, subscriberIDs...)
	}
	slog.Info("Monthly report reviewed", "reportID", reportID, "status", status, "reviewerID", reviewerID)
	return &report, nil
}

// GetReport retrieves a report by ID
func (s *ReportService) GetReport(ctx context.Context, reportID string) (*models.MonthlyReport, error) {
	var report models.MonthlyReport
	if err := s.db.WithContext(ctx).First(&report, "report_id = ?", reportID).Error; err != nil {
		return nil, notFound(err, "report", reportID)
	}
	return &report, nil
}

// ListSchemeReports lists the reports of a scheme by period
func (s *ReportService) ListSchemeReports(ctx context.Context, schemeID string) ([]models.MonthlyReport, error) {
	var reports []models.MonthlyReport
	if err := s.db.WithContext(ctx).
		Where("scheme_id = ?", schemeID).
		Order("period ASC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}
