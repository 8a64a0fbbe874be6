package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"code":      {},
	"component": {},
	"method":    {},
	"requestId": {},
	"txHash":    {},
}

// IsAllowlisted reports whether key is exempt from redaction.
func IsAllowlisted(key string) bool {
	for allowed := range redactionAllowlist {
		if strings.EqualFold(allowed, strings.TrimSpace(key)) {
			return true
		}
	}
	return false
}

// MaskField returns an attribute that hides value unless key is allowlisted.
// The RPC server masks presented bearer tokens with it and the daemon masks
// its configured token and exporter headers.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
