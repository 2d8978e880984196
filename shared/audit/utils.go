package audit

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// redactedKeys never reach an audit record. Activation tokens and passwords
// travel through access request and login payloads.
var redactedKeys = []string{"password", "token", "secret", "authorization", "cookie"}

const redactedValue = "[REDACTED]"

// MarshalMetadata marshals audit metadata, replacing credential-like values.
// A nil map yields nil; a value that cannot be encoded yields "{}".
func MarshalMetadata(metadata map[string]interface{}) json.RawMessage {
	if metadata == nil {
		return nil
	}
	bytes, err := json.Marshal(redact(metadata))
	if err != nil {
		slog.Error("Failed to marshal metadata for audit", "error", err)
		return json.RawMessage("{}")
	}
	return json.RawMessage(bytes)
}

func redact(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		switch {
		case isRedactedKey(k):
			out[k] = redactedValue
		default:
			if nested, ok := v.(map[string]interface{}); ok {
				v = redact(nested)
			}
			out[k] = v
		}
	}
	return out
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range redactedKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// CurrentTimestamp returns the audit timestamp format, RFC 3339 in UTC
func CurrentTimestamp() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp formats t as an audit timestamp
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
