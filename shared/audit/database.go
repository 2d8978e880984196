package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an audit event stored in the portal database
type AuditLog struct {
	ID                 string          `gorm:"primaryKey;column:id" json:"id"`
	Timestamp          time.Time       `gorm:"not null;index:idx_audit_logs_timestamp" json:"timestamp"`
	TraceID            *string         `gorm:"type:varchar(64)" json:"traceId,omitempty"`
	Status             string          `gorm:"type:varchar(20);not null;index:idx_audit_logs_status" json:"status"`
	EventType          *string         `gorm:"type:varchar(50)" json:"eventType,omitempty"`
	EventAction        *string         `gorm:"type:varchar(50)" json:"eventAction,omitempty"`
	ActorType          string          `gorm:"type:varchar(50);not null" json:"actorType"`
	ActorID            string          `gorm:"type:varchar(255);not null;index" json:"actorId"`
	TargetType         string          `gorm:"type:varchar(50);not null" json:"targetType"`
	TargetID           *string         `gorm:"type:varchar(255)" json:"targetId,omitempty"`
	RequestMetadata    json.RawMessage `gorm:"type:text" json:"requestMetadata,omitempty"`
	ResponseMetadata   json.RawMessage `gorm:"type:text" json:"responseMetadata,omitempty"`
	AdditionalMetadata json.RawMessage `gorm:"type:text" json:"additionalMetadata,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"createdAt"`
}

// TableName sets the table name for AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// LogFilter narrows an audit log query
type LogFilter struct {
	ActorID    string
	Status     string
	TargetType string
	Limit      int
	Offset     int
}

// DatabaseAuditor writes audit events to the audit_logs table in the background
type DatabaseAuditor struct {
	db *gorm.DB
	wg sync.WaitGroup
}

// NewDatabaseAuditor creates an auditor backed by db
func NewDatabaseAuditor(db *gorm.DB) *DatabaseAuditor {
	return &DatabaseAuditor{db: db}
}

// IsEnabled implements Auditor
func (d *DatabaseAuditor) IsEnabled() bool {
	return d.db != nil
}

// LogEvent implements Auditor. The write runs in the background; call Flush
// to wait for outstanding writes.
func (d *DatabaseAuditor) LogEvent(_ context.Context, event *AuditLogRequest) {
	if d.db == nil || event == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.write(context.Background(), event); err != nil {
			slog.Error("Failed to write audit log", "error", err, "actorId", event.ActorID)
		}
	}()
}

// Flush blocks until all pending audit writes have finished
func (d *DatabaseAuditor) Flush() {
	d.wg.Wait()
}

func (d *DatabaseAuditor) write(ctx context.Context, event *AuditLogRequest) error {
	ts, err := time.Parse(time.RFC3339, event.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	entry := AuditLog{
		ID:                 uuid.New().String(),
		Timestamp:          ts,
		TraceID:            event.TraceID,
		Status:             event.Status,
		EventType:          event.EventType,
		EventAction:        event.EventAction,
		ActorType:          event.ActorType,
		ActorID:            event.ActorID,
		TargetType:         event.TargetType,
		TargetID:           event.TargetID,
		RequestMetadata:    event.RequestMetadata,
		ResponseMetadata:   event.ResponseMetadata,
		AdditionalMetadata: event.AdditionalMetadata,
		CreatedAt:          time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List returns audit logs newest first together with the total match count
func (d *DatabaseAuditor) List(ctx context.Context, filter LogFilter) ([]AuditLog, int64, error) {
	query := d.db.WithContext(ctx).Model(&AuditLog{})
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []AuditLog
	if err := query.Order("timestamp DESC").Limit(limit).Offset(filter.Offset).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, total, nil
}
