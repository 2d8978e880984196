package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/chitbox-dev/chitfund-portal/shared/audit"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
)

// LogAudit records a write operation against a portal resource
func LogAudit(client audit.Auditor, r *http.Request, resource models.ResourceType, resourceID *string, status string) {
	if client == nil || !client.IsEnabled() {
		return
	}

	// Only log write operations (POST, PUT, PATCH, DELETE)
	if !isWriteOperation(r.Method) {
		return
	}

	actorType, actorID := extractActorInfoFromRequest(r)
	if actorID == "" {
		slog.Warn("Cannot log audit event: no actor ID found", "path", r.URL.Path)
		return
	}

	eventAction := determineEventAction(r.Method)
	eventType := eventTypeFor(resource)

	auditRequest := &audit.AuditLogRequest{
		Timestamp:   audit.CurrentTimestamp(),
		EventType:   &eventType,
		EventAction: &eventAction,
		Status:      status,
		ActorType:   actorType,
		ActorID:     actorID,
		TargetType:  string(resource),
		TargetID:    resourceID,
		RequestMetadata: audit.MarshalMetadata(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"ip":     authutils.GetRequestIP(r),
		}),
	}

	// The request context may be cancelled before the event is written
	client.LogEvent(context.Background(), auditRequest)
}

// extractActorInfoFromRequest returns the actor type and id. Unauthenticated
// public writes such as access requests are attributed to the client IP.
func extractActorInfoFromRequest(r *http.Request) (string, string) {
	user, err := GetUserFromRequest(r)
	if err == nil && user != nil {
		return string(user.GetPrimaryRole().ActorType()), user.UserID
	}
	return "ANONYMOUS", "anonymous@" + authutils.GetRequestIP(r)
}

var (
	auditorMu     sync.RWMutex
	globalAuditor audit.Auditor
)

// SetAuditor installs the process wide Auditor used by LogAuditEvent and
// returns the previous one. nil disables auditing.
func SetAuditor(auditor audit.Auditor) audit.Auditor {
	auditorMu.Lock()
	defer auditorMu.Unlock()
	previous := globalAuditor
	globalAuditor = auditor
	return previous
}

func currentAuditor() audit.Auditor {
	auditorMu.RLock()
	defer auditorMu.RUnlock()
	return globalAuditor
}

// FlushAuditor waits for buffered audit events when the installed Auditor
// writes asynchronously
func FlushAuditor() {
	if flusher, ok := currentAuditor().(interface{ Flush() }); ok {
		flusher.Flush()
	}
}

// LogAuditEvent records a write with the process wide Auditor
func LogAuditEvent(r *http.Request, resource models.ResourceType, resourceID *string, status models.AuditStatus) {
	auditor := currentAuditor()
	if auditor == nil {
		slog.Warn("Audit logging skipped: no auditor installed")
		return
	}
	auditStatus := audit.StatusSuccess
	if status == models.AuditStatusFailure {
		auditStatus = audit.StatusFailure
	}
	LogAudit(auditor, r, resource, resourceID, auditStatus)
}

func isWriteOperation(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

func determineEventAction(method string) string {
	switch method {
	case http.MethodPost:
		return "CREATE"
	case http.MethodPut, http.MethodPatch:
		return "UPDATE"
	case http.MethodDelete:
		return "DELETE"
	default:
		return ""
	}
}

func eventTypeFor(resource models.ResourceType) string {
	switch resource {
	case models.ResourceTypeAuth:
		return audit.EventTypeAuth
	case models.ResourceTypeWorkflows, models.ResourceTypeReports, models.ResourceTypeDocuments:
		return audit.EventTypeWorkflow
	default:
		return audit.EventTypeManagement
	}
}
