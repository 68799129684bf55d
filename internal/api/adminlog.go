package api

import (
	"log/slog"
	"net/http"
)

// adminLog emits a structured log entry for an administrative action.
func adminLog(r *http.Request, action, resourceType, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", clientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}
	attrs = append(attrs, detail...)
	slog.Info("admin action", attrs...)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
