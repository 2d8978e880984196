package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scheme is a chit scheme registered by a foreman. Monetary columns are
// fixed point; the chit value is always installment × subscribers.
type Scheme struct {
	SchemeID            string          `gorm:"primarykey;column:scheme_id" json:"schemeId"`
	ForemanID           string          `gorm:"column:foreman_id;not null;index" json:"foremanId"`
	Name                string          `gorm:"column:name;not null" json:"name"`
	ChitValue           decimal.Decimal `gorm:"column:chit_value;type:numeric(15,2);not null" json:"chitValue"`
	Installment         decimal.Decimal `gorm:"column:installment;type:numeric(15,2);not null" json:"installment"`
	NumberOfSubscribers int             `gorm:"column:number_of_subscribers;not null" json:"numberOfSubscribers"`
	DurationMonths      int             `gorm:"column:duration_months;not null" json:"durationMonths"`
	CommissionPercent   decimal.Decimal `gorm:"column:commission_percent;type:numeric(5,2);not null" json:"commissionPercent"`
	StartDate           *time.Time      `gorm:"column:start_date" json:"startDate,omitempty"`
	Status              SchemeStatus    `gorm:"column:status;type:varchar(20);not null;default:'draft';index" json:"status"`
	PSONumber           *string         `gorm:"column:pso_number;uniqueIndex" json:"psoNumber,omitempty"`
	Form7Number         *string         `gorm:"column:form7_number;uniqueIndex" json:"form7Number,omitempty"`
	Version             int             `gorm:"column:version;not null;default:1" json:"version"`
	BaseModel
}

// TableName sets the table name for GORM
func (Scheme) TableName() string {
	return "schemes"
}

// IsEditable reports whether the foreman can still change scheme terms
func (s *Scheme) IsEditable() bool {
	return s.Status == SchemeStatusDraft
}

// AcceptsDocuments reports whether documents can be uploaded in the current state
func (s *Scheme) AcceptsDocuments() bool {
	switch s.Status {
	case SchemeStatusDraft, SchemeStatusSubmitted, SchemeStatusUnderReview:
		return true
	}
	return false
}

// Enrollment assigns a subscriber a ticket in a scheme
type Enrollment struct {
	EnrollmentID string `gorm:"primarykey;column:enrollment_id" json:"enrollmentId"`
	SchemeID     string `gorm:"column:scheme_id;not null;uniqueIndex:idx_enrollment_subscriber;uniqueIndex:idx_enrollment_ticket" json:"schemeId"`
	SubscriberID string `gorm:"column:subscriber_id;not null;uniqueIndex:idx_enrollment_subscriber;index" json:"subscriberId"`
	UCFSIN       string `gorm:"column:ucfsin;not null" json:"ucfsin"`
	TicketNumber int    `gorm:"column:ticket_number;not null;uniqueIndex:idx_enrollment_ticket" json:"ticketNumber"`
	BaseModel
}

// TableName sets the table name for GORM
func (Enrollment) TableName() string {
	return "enrollments"
}
