package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessRequestService handles access request intake, the MCQ assessment and review
type AccessRequestService struct {
	db            *gorm.DB
	assessment    config.Assessment
	activationTTL time.Duration
}

// NewAccessRequestService creates a new access request service
func NewAccessRequestService(db *gorm.DB, catalog *config.Catalog, activationTTL time.Duration) *AccessRequestService {
	return &AccessRequestService{db: db, assessment: catalog.Assessment, activationTTL: activationTTL}
}

// accessRequestApprovedEvent is delivered to the applicant by the outbox worker
type accessRequestApprovedEvent struct {
	RequestID       string      `json:"requestId"`
	UserID          string      `json:"userId"`
	Email           string      `json:"email"`
	Name            string      `json:"name"`
	Role            models.Role `json:"role"`
	UCFSIN          string      `json:"ucfsin,omitempty"`
	ActivationToken string      `json:"activationToken"`
	ExpiresAt       time.Time   `json:"expiresAt"`
}

type accessRequestRejectedEvent struct {
	RequestID string `json:"requestId"`
	Email     string `json:"email"`
	Review    string `json:"review"`
}

// CreateAccessRequest records a public request for a foreman or subscriber account
func (s *AccessRequestService) CreateAccessRequest(ctx context.Context, req *models.CreateAccessRequestRequest) (*models.AccessRequest, error) {
	role, ok := models.RequestableRole(req.RequestedRole)
	if !ok {
		return nil, validationError("requested role %q cannot be requested", req.RequestedRole)
	}
	email := normalizeEmail(req.Email)

	request := &models.AccessRequest{
		RequestID:     newID(prefixAccessRequest),
		Name:          strings.TrimSpace(req.Name),
		Email:         email,
		Phone:         strings.TrimSpace(req.Phone),
		Organization:  strings.TrimSpace(req.Organization),
		RequestedRole: role,
		Reason:        strings.TrimSpace(req.Reason),
		Status:        models.StatusPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check existing users: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: an account already exists for %s", models.ErrConflict, email)
		}

		if err := tx.Model(&models.AccessRequest{}).
			Where("email = ? AND status = ?", email, models.StatusPending).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check pending requests: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: a pending access request already exists for %s", models.ErrConflict, email)
		}

		if err := tx.Create(request).Error; err != nil {
			return fmt.Errorf("failed to create access request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Access request created", "requestID", request.RequestID, "role", request.RequestedRole)
	return request, nil
}

// GetAssessmentQuestions returns the MCQ without the answer key
func (s *AccessRequestService) GetAssessmentQuestions() []models.AssessmentQuestion {
	questions := make([]models.AssessmentQuestion, 0, len(s.assessment.Questions))
	for _, q := range s.assessment.Questions {
		questions = append(questions, models.AssessmentQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
		})
	}
	return questions
}

// ScoreAssessment returns the number of correct answers and the percentage
// score rounded to the nearest integer. Unanswered questions count as wrong
// and unknown question ids are ignored.
func ScoreAssessment(assessment config.Assessment, answers map[string]int) (correct, score int) {
	total := len(assessment.Questions)
	if total == 0 {
		return 0, 0
	}
	for _, q := range assessment.Questions {
		if answer, ok := answers[q.ID]; ok && answer == q.Answer {
			correct++
		}
	}
	score = int(math.Round(float64(correct) / float64(total) * 100))
	return correct, score
}

// SubmitAssessment scores an attempt for a pending request
func (s *AccessRequestService) SubmitAssessment(ctx context.Context, requestID string, answers map[string]int) (*models.AssessmentResult, error) {
	var result *models.AssessmentResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.AccessRequest
		if err := tx.First(&request, "request_id = ?", requestID).Error; err != nil {
			return notFound(err, "access request", requestID)
		}

		if request.Status != models.StatusPending {
			return transitionError("access request %s is %s", requestID, request.Status)
		}
		if request.AssessmentPassed {
			return transitionError("assessment for access request %s has already been passed", requestID)
		}
		if request.AssessmentAttempts >= models.MaxAssessmentAttempts {
			return validationError("maximum of %d assessment attempts reached", models.MaxAssessmentAttempts)
		}

		correct, score := ScoreAssessment(s.assessment, answers)
		passed := score >= s.assessment.PassMark
		attempts := request.AssessmentAttempts + 1

		if err := tx.Model(&request).Updates(map[string]interface{}{
			"assessment_score":    score,
			"assessment_passed":   passed,
			"assessment_attempts": attempts,
		}).Error; err != nil {
			return fmt.Errorf("failed to record assessment: %w", err)
		}

		result = &models.AssessmentResult{
			RequestID:         requestID,
			Correct:           correct,
			Total:             len(s.assessment.Questions),
			Score:             score,
			PassMark:          s.assessment.PassMark,
			Passed:            passed,
			Attempts:          attempts,
			RemainingAttempts: models.MaxAssessmentAttempts - attempts,
		}
		if passed {
			result.RemainingAttempts = 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Assessment submitted", "requestID", requestID, "score", result.Score, "passed", result.Passed)
	return result, nil
}

// ReviewAccessRequest approves or rejects a pending request. Approval needs a
// passed assessment and creates an inactive account plus an outbox event
// carrying the activation token, all in one transaction.
func (s *AccessRequestService) ReviewAccessRequest(ctx context.Context, requestID, reviewerID string, req *models.ReviewRequest) (*models.AccessRequestReviewResponse, error) {
	decision := models.Status(req.Status)
	if decision != models.StatusApproved && decision != models.StatusRejected {
		return nil, validationError("status must be approved or rejected")
	}
	review := trimmedComment(req.Review)
	if decision == models.StatusRejected && review == nil {
		return nil, validationError("a review comment is required when rejecting")
	}

	response := &models.AccessRequestReviewResponse{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.AccessRequest
		if err := tx.First(&request, "request_id = ?", requestID).Error; err != nil {
			return notFound(err, "access request", requestID)
		}
		if request.Status != models.StatusPending {
			return transitionError("access request %s is already %s", requestID, request.Status)
		}

		updates := map[string]interface{}{
			"status":      decision,
			"review":      review,
			"reviewed_by": reviewerID,
		}

		if decision == models.StatusApproved {
			if !request.AssessmentPassed {
				return validationError("access request %s has not passed the assessment", requestID)
			}

			user, token, err := s.createPendingUser(tx, &request)
			if err != nil {
				return err
			}
			updates["user_id"] = user.UserID
			response.User = user

			if _, err := enqueueOutbox(tx, models.OutboxJobTypeAccessRequestApproved, request.RequestID, accessRequestApprovedEvent{
				RequestID:       request.RequestID,
				UserID:          user.UserID,
				Email:           user.Email,
				Name:            user.Name,
				Role:            user.Role,
				UCFSIN:          user.UCFSINValue(),
				ActivationToken: token,
				ExpiresAt:       *user.ActivationExpiresAt,
			}); err != nil {
				return err
			}
		} else {
			if _, err := enqueueOutbox(tx, models.OutboxJobTypeAccessRequestRejected, request.RequestID, accessRequestRejectedEvent{
				RequestID: request.RequestID,
				Email:     request.Email,
				Review:    *review,
			}); err != nil {
				return err
			}
		}

		if err := tx.Model(&request).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update access request: %w", err)
		}
		if err := tx.First(&request, "request_id = ?", requestID).Error; err != nil {
			return fmt.Errorf("failed to reload access request: %w", err)
		}
		response.Request = &request
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Access request reviewed", "requestID", requestID, "status", decision, "reviewer", reviewerID)
	return response, nil
}

// createPendingUser creates the inactive account for an approved request
func (s *AccessRequestService) createPendingUser(tx *gorm.DB, request *models.AccessRequest) (*models.User, string, error) {
	token, tokenHash, err := GenerateActivationToken()
	if err != nil {
		return nil, "", err
	}
	expiresAt := time.Now().Add(s.activationTTL)

	user := &models.User{
		UserID:              newID(prefixUser),
		Name:                request.Name,
		Email:               request.Email,
		Phone:               request.Phone,
		Role:                request.RequestedRole,
		Organization:        request.Organization,
		Active:              false,
		ActivationTokenHash: &tokenHash,
		ActivationExpiresAt: &expiresAt,
	}
	if request.RequestedRole == models.RoleSubscriber {
		user.UCFSIN = ptr(newUCFSIN())
	}

	if err := tx.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", fmt.Errorf("%w: an account already exists for %s", models.ErrConflict, request.Email)
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}
	return user, token, nil
}

// newUCFSIN generates a subscriber identification number, e.g. UCF3FA29C01B7
func newUCFSIN() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "UCF" + strings.ToUpper(id[:10])
}

// GetAccessRequest retrieves an access request by ID
func (s *AccessRequestService) GetAccessRequest(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	var request models.AccessRequest
	if err := s.db.WithContext(ctx).First(&request, "request_id = ?", requestID).Error; err != nil {
		return nil, notFound(err, "access request", requestID)
	}
	return &request, nil
}

// ListAccessRequests retrieves access requests, newest first, optionally filtered by status
func (s *AccessRequestService) ListAccessRequests(ctx context.Context, statusFilter []string) ([]models.AccessRequest, error) {
	var requests []models.AccessRequest
	query := s.db.WithContext(ctx)
	if len(statusFilter) > 0 {
		query = query.Where("status IN ?", statusFilter)
	}
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	return requests, nil
}
