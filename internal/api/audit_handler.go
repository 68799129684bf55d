package api

import (
	"net/http"
	"strconv"

	"github.com/calloway/promptgate/internal/audit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// auditHandler serves the admin audit-trail queries.
type auditHandler struct {
	store *audit.Store
}

func newAuditHandler(store *audit.Store) *auditHandler {
	return &auditHandler{store: store}
}

// ListAuditLogs handles GET /api/v1/admin/audit-logs, most recent first.
func (h *auditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = l
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	records, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list audit logs")
		return
	}

	if records == nil {
		records = []*audit.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audit_logs": records,
	})
}
