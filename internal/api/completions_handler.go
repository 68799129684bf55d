package api

import (
	"errors"
	"net/http"

	"github.com/calloway/promptgate/internal/auth"
	"github.com/calloway/promptgate/internal/pipeline"
	"github.com/calloway/promptgate/internal/upstream"
)

// completionsHandler fronts the admission pipeline for the gateway surface.
type completionsHandler struct {
	pipeline *pipeline.Pipeline
}

func newCompletionsHandler(p *pipeline.Pipeline) *completionsHandler {
	return &completionsHandler{pipeline: p}
}

// CreateCompletion handles POST /v1/chat/completions (agent bearer token).
func (h *completionsHandler) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r)

	var req upstream.CompletionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	completion, err := h.pipeline.Run(r.Context(), token, &req)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completion)
}

// writePipelineError maps pipeline rejections to HTTP statuses. Each terminal
// error has a distinct status so callers can tell a credential problem from a
// budget or policy one.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or missing API token")
	case errors.Is(err, auth.ErrAgentSuspended):
		writeError(w, http.StatusForbidden, "agent_suspended", "agent is deactivated")
	case errors.Is(err, auth.ErrBudgetExhausted):
		writeError(w, http.StatusPaymentRequired, "budget_exhausted", "agent budget exhausted")
	case errors.Is(err, pipeline.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	case errors.Is(err, pipeline.ErrPolicyViolation):
		writeError(w, http.StatusBadRequest, "policy_violation", err.Error())
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", "messages must not be empty")
	case errors.Is(err, upstream.ErrTimeout), errors.Is(err, upstream.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream provider unavailable")
	default:
		var provErr *upstream.ProviderError
		if errors.As(err, &provErr) {
			writeError(w, http.StatusBadGateway, "upstream_error", provErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
