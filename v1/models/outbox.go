package models

import "time"

// OutboxJobStatus represents the status of an outbox job
type OutboxJobStatus string

const (
	OutboxJobStatusPending    OutboxJobStatus = "pending"
	OutboxJobStatusProcessing OutboxJobStatus = "processing"
	OutboxJobStatusCompleted  OutboxJobStatus = "completed"
	OutboxJobStatusFailed     OutboxJobStatus = "failed"
)

// OutboxJobType is the domain event carried by an outbox job
type OutboxJobType string

const (
	OutboxJobTypeAccessRequestApproved OutboxJobType = "access_request.approved"
	OutboxJobTypeAccessRequestRejected OutboxJobType = "access_request.rejected"
	OutboxJobTypeWorkflowTransition    OutboxJobType = "scheme.workflow_transition"
	OutboxJobTypeCertificateIssued     OutboxJobType = "certificate.issued"
	OutboxJobTypeReportReviewed        OutboxJobType = "report.reviewed"
)

// OutboxJob is written in the same transaction as the state change it
// announces and delivered later by the outbox worker
type OutboxJob struct {
	JobID       string          `gorm:"primarykey;column:job_id" json:"jobId"`
	JobType     OutboxJobType   `gorm:"column:job_type;type:varchar(50);not null" json:"jobType"`
	AggregateID string          `gorm:"column:aggregate_id;not null;index" json:"aggregateId"`
	Payload     string          `gorm:"column:payload;type:text;not null" json:"payload"`
	Status      OutboxJobStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	RetryCount  int             `gorm:"column:retry_count;not null;default:0" json:"retryCount"`
	MaxRetries  int             `gorm:"column:max_retries;not null;default:5" json:"maxRetries"`
	NextRetryAt *time.Time      `gorm:"column:next_retry_at" json:"nextRetryAt,omitempty"`
	Error       *string         `gorm:"column:error" json:"error,omitempty"`
	ProcessedAt *time.Time      `gorm:"column:processed_at" json:"processedAt,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (OutboxJob) TableName() string {
	return "outbox_jobs"
}
