package audit

import "context"

// Auditor is the primary interface for audit logging operations.
//
// Implementations must not block the caller for long and must degrade
// gracefully when their sink is unavailable.
type Auditor interface {
	// LogEvent records an audit event. Failures are logged, never returned.
	LogEvent(ctx context.Context, event *AuditLogRequest)

	// IsEnabled returns whether audit logging is currently enabled.
	// Callers can use it to skip preparing events nobody will record.
	IsEnabled() bool
}

// NoopAuditor discards every event
type NoopAuditor struct{}

// LogEvent implements Auditor
func (NoopAuditor) LogEvent(context.Context, *AuditLogRequest) {}

// IsEnabled implements Auditor
func (NoopAuditor) IsEnabled() bool { return false }
