package audit

import (
	"encoding/json"
)

// AuditLogRequest represents the payload for creating an audit log
type AuditLogRequest struct {
	// Trace & Correlation
	TraceID *string `json:"traceId,omitempty"`

	// Temporal
	Timestamp string `json:"timestamp"` // RFC 3339, required

	// Event Classification
	EventType   *string `json:"eventType,omitempty"`   // MANAGEMENT_EVENT, WORKFLOW_EVENT, AUTH_EVENT
	EventAction *string `json:"eventAction,omitempty"` // CREATE, READ, UPDATE, DELETE
	Status      string  `json:"status"`                // SUCCESS, FAILURE

	// Actor Information
	ActorType string `json:"actorType"` // ADMIN, FOREMAN, SUBSCRIBER, SYSTEM, ANONYMOUS
	ActorID   string `json:"actorId"`   // user id or email (required)

	// Target Information
	TargetType string  `json:"targetType"` // RESOURCE
	TargetID   *string `json:"targetId,omitempty"`

	// Metadata (Payload without PII/sensitive data)
	RequestMetadata    json.RawMessage `json:"requestMetadata,omitempty"`
	ResponseMetadata   json.RawMessage `json:"responseMetadata,omitempty"`
	AdditionalMetadata json.RawMessage `json:"additionalMetadata,omitempty"`
}

// Audit log status constants
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Event type constants
const (
	EventTypeManagement = "MANAGEMENT_EVENT"
	EventTypeWorkflow   = "WORKFLOW_EVENT"
	EventTypeAuth       = "AUTH_EVENT"
)
