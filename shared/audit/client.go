package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// AuditLogsEndpoint is the API endpoint for creating audit logs
	AuditLogsEndpoint = "/api/audit-logs"
	// DefaultHTTPTimeout is the default timeout for HTTP requests to the audit service
	DefaultHTTPTimeout = 10 * time.Second
)

// Client sends audit events to a remote audit service
type Client struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
}

// NewClient creates a new audit client. An empty baseURL disables it and
// every LogEvent call becomes a no-op.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		slog.Info("Remote audit client disabled", "reason", "audit service URL not configured")
		return &Client{enabled: false}
	}

	slog.Info("Remote audit client initialized", "baseURL", baseURL)
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultHTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
		enabled: true,
	}
}

// IsEnabled returns whether the audit client is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// LogEvent sends an audit event asynchronously (fire-and-forget).
// A background context is used so the send survives the originating request.
func (c *Client) LogEvent(_ context.Context, event *AuditLogRequest) {
	if !c.enabled || c.httpClient == nil {
		return
	}
	go c.send(context.Background(), event)
}

// send posts the audit event and reports whether the service accepted it
func (c *Client) send(ctx context.Context, event *AuditLogRequest) bool {
	payloadBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal audit request", "error", err)
		return false
	}

	endpointURL, err := url.JoinPath(c.baseURL, AuditLogsEndpoint)
	if err != nil {
		slog.Error("Failed to construct audit service URL", "error", err, "baseURL", c.baseURL)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payloadBytes))
	if err != nil {
		slog.Error("Failed to create audit request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send audit request", "error", err)
		return false
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			slog.Error("Failed to close audit response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Audit service returned non-201 status",
			"status", resp.StatusCode, "body", string(bodyBytes))
		return false
	}

	slog.Debug("Audit event sent",
		"eventType", event.EventType,
		"actorType", event.ActorType,
		"actorId", event.ActorID,
		"targetType", event.TargetType,
		"status", event.Status)
	return true
}
