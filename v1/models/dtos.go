package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs for V1 API endpoints

// Authentication DTOs
type LoginRequest struct {
	// Identifier is an email address or a UCFSIN
	Identifier string `json:"identifier" validate:"required,max=320"`
	Password   string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

type ActivateAccountRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// CreateAccessRequestRequest Access request DTOs
type CreateAccessRequestRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	Email         string `json:"email" validate:"required,email,max=320"`
	Phone         string `json:"phone,omitempty" validate:"omitempty,max=15"`
	Organization  string `json:"organization,omitempty" validate:"omitempty,max=255"`
	RequestedRole string `json:"requestedRole" validate:"required,oneof=foreman subscriber"`
	Reason        string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

type SubmitAssessmentRequest struct {
	// Answers maps question id to the selected option index
	Answers map[string]int `json:"answers" validate:"required"`
}

type ReviewRequest struct {
	Status string  `json:"status" validate:"required"`
	Review *string `json:"review,omitempty" validate:"omitempty,max=1000"`
}

type AccessRequestReviewResponse struct {
	Request *AccessRequest `json:"request"`
	User    *User          `json:"user,omitempty"`
}

// CreateSchemeRequest Scheme DTOs
type CreateSchemeRequest struct {
	Name                string          `json:"name" validate:"required,max=255"`
	ChitValue           decimal.Decimal `json:"chitValue"`
	Installment         decimal.Decimal `json:"installment"`
	NumberOfSubscribers int             `json:"numberOfSubscribers" validate:"required,min=2,max=1000"`
	DurationMonths      int             `json:"durationMonths" validate:"required,min=2,max=1000"`
	CommissionPercent   decimal.Decimal `json:"commissionPercent"`
}

type UpdateSchemeRequest struct {
	Version             int              `json:"version" validate:"required,min=1"`
	Name                *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	ChitValue           *decimal.Decimal `json:"chitValue,omitempty"`
	Installment         *decimal.Decimal `json:"installment,omitempty"`
	NumberOfSubscribers *int             `json:"numberOfSubscribers,omitempty" validate:"omitempty,min=2,max=1000"`
	DurationMonths      *int             `json:"durationMonths,omitempty" validate:"omitempty,min=2,max=1000"`
	CommissionPercent   *decimal.Decimal `json:"commissionPercent,omitempty"`
}

type WorkflowActionRequest struct {
	Action  string  `json:"action" validate:"required,oneof=approve reject request_changes"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

type CommenceSchemeRequest struct {
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
}

type EnrollSubscriberRequest struct {
	UCFSIN string `json:"ucfsin" validate:"required"`
}

// SubmitMonthlyReportRequest Monthly report DTOs
type SubmitMonthlyReportRequest struct {
	Period           string          `json:"period" validate:"required,datetime=2006-01"`
	CollectedAmount  decimal.Decimal `json:"collectedAmount"`
	PrizeAmount      decimal.Decimal `json:"prizeAmount"`
	WinnerUCFSIN     string          `json:"winnerUcfsin" validate:"required"`
	DefaulterUCFSINs []string        `json:"defaulterUcfsins,omitempty" validate:"omitempty,dive,required"`
}

// CollectionResponse wraps list endpoints
type CollectionResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewCollectionResponse builds a CollectionResponse, never returning a nil item list
func NewCollectionResponse[T any](items []T) CollectionResponse[T] {
	if items == nil {
		items = []T{}
	}
	return CollectionResponse[T]{Items: items, Count: len(items)}
}
