package models

// Status represents the review status of access requests and documents
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid checks if the status is one of the review statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// SchemeStatus represents the lifecycle of a chit scheme
type SchemeStatus string

const (
	SchemeStatusDraft       SchemeStatus = "draft"
	SchemeStatusSubmitted   SchemeStatus = "submitted"
	SchemeStatusUnderReview SchemeStatus = "under_review"
	SchemeStatusApproved    SchemeStatus = "approved"
	SchemeStatusRejected    SchemeStatus = "rejected"
	SchemeStatusCommenced   SchemeStatus = "commenced"
)

// StepStatus represents the state of a single approval step
type StepStatus string

const (
	StepStatusPending          StepStatus = "pending"
	StepStatusInProgress       StepStatus = "in_progress"
	StepStatusApproved         StepStatus = "approved"
	StepStatusRejected         StepStatus = "rejected"
	StepStatusChangesRequested StepStatus = "changes_requested"
	StepStatusCancelled        StepStatus = "cancelled"
)

// WorkflowAction is an action a reviewer takes on the current step
type WorkflowAction string

const (
	WorkflowActionSubmit         WorkflowAction = "submit"
	WorkflowActionApprove        WorkflowAction = "approve"
	WorkflowActionReject         WorkflowAction = "reject"
	WorkflowActionRequestChanges WorkflowAction = "request_changes"
)

// IsReviewAction reports whether the action can be applied to an open step
func (a WorkflowAction) IsReviewAction() bool {
	return a == WorkflowActionApprove || a == WorkflowActionReject || a == WorkflowActionRequestChanges
}

// ReportStatus represents the review state of a monthly report
type ReportStatus string

const (
	ReportStatusSubmitted ReportStatus = "submitted"
	ReportStatusAccepted  ReportStatus = "accepted"
	ReportStatusRejected  ReportStatus = "rejected"
)

// CertificateType identifies the regulatory certificate kind
type CertificateType string

const (
	CertificateTypePSO   CertificateType = "pso"
	CertificateTypeForm7 CertificateType = "form7"
)

// NumberPrefix returns the prefix used in certificate numbers
func (c CertificateType) NumberPrefix() string {
	switch c {
	case CertificateTypePSO:
		return "PSO"
	case CertificateTypeForm7:
		return "F7"
	default:
		return "CERT"
	}
}

// AuditStatus represents the status of audit events
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// ResourceType represents different resource types for auditing
type ResourceType string

const (
	ResourceTypeAuth           ResourceType = "AUTH"
	ResourceTypeUsers          ResourceType = "USERS"
	ResourceTypeAccessRequests ResourceType = "ACCESS-REQUESTS"
	ResourceTypeSchemes        ResourceType = "SCHEMES"
	ResourceTypeWorkflows      ResourceType = "WORKFLOWS"
	ResourceTypeEnrollments    ResourceType = "ENROLLMENTS"
	ResourceTypeDocuments      ResourceType = "DOCUMENTS"
	ResourceTypeCertificates   ResourceType = "CERTIFICATES"
	ResourceTypeReports        ResourceType = "REPORTS"
)

// ActorType represents the type of actor recorded in audit events
type ActorType string

const (
	ActorTypeAdmin      ActorType = "ADMIN"
	ActorTypeForeman    ActorType = "FOREMAN"
	ActorTypeSubscriber ActorType = "SUBSCRIBER"
	ActorTypeSystem     ActorType = "SYSTEM"
)

// Field length constraints
const (
	MaxNameLength         = 255
	MaxReviewLength       = 1000
	MaxEmailLength        = 320 // RFC 3696 specification
	MaxPhoneLength        = 15  // E.164 format
	MaxFileNameLength     = 255
	MinPasswordLength     = 8
	MaxAssessmentAttempts = 3
	MaxCommissionPercent  = 5
)

// Badge classes used by the portal UI
const (
	BadgeWarning   = "warning"
	BadgeSuccess   = "success"
	BadgeDanger    = "danger"
	BadgeInfo      = "info"
	BadgeSecondary = "secondary"
)

var statusBadges = map[string]string{
	"pending":           BadgeWarning,
	"changes_requested": BadgeWarning,
	"approved":          BadgeSuccess,
	"accepted":          BadgeSuccess,
	"completed":         BadgeSuccess,
	"commenced":         BadgeSuccess,
	"rejected":          BadgeDanger,
	"failed":            BadgeDanger,
	"cancelled":         BadgeDanger,
	"in_progress":       BadgeInfo,
	"under_review":      BadgeInfo,
	"submitted":         BadgeInfo,
}

// StatusBadgeClass maps any status string to the badge class the UI renders
func StatusBadgeClass(status string) string {
	if class, ok := statusBadges[status]; ok {
		return class
	}
	return BadgeSecondary
}

// StatusBadges returns a copy of the full status to badge mapping
func StatusBadges() map[string]string {
	out := make(map[string]string, len(statusBadges))
	for k, v := range statusBadges {
		out[k] = v
	}
	return out
}
