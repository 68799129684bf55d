package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/calloway/promptgate/internal/agent"
	"github.com/calloway/promptgate/internal/auth"
)

// agentsHandler groups agent-related HTTP handlers.
type agentsHandler struct {
	store *agent.Store
}

func newAgentsHandler(store *agent.Store) *agentsHandler {
	return &agentsHandler{store: store}
}

// createAgentRequest is the JSON body for registering an agent.
type createAgentRequest struct {
	Name           string  `json:"name"`
	BudgetLimitUSD float64 `json:"budget_limit_usd"`
	RateLimitRPM   int     `json:"rate_limit_rpm"`
}

// CreateAgent handles POST /api/v1/admin/agents.
// Generates a token and returns the plaintext in the response, the only time
// it is shown.
func (h *agentsHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "name is required")
		return
	}
	if req.BudgetLimitUSD < 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "budget_limit_usd must not be negative")
		return
	}

	token, plaintext, err := auth.GenerateToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate token")
		return
	}

	ag, err := h.store.Create(r.Context(), agent.CreateAgentInput{
		Name:               req.Name,
		TokenHash:          token.Hash,
		TokenPrefix:        token.Prefix,
		RateLimitPerMinute: req.RateLimitRPM,
		BudgetTotalUSD:     req.BudgetLimitUSD,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create agent")
		return
	}

	adminLog(r, "create", "agent", ag.ID, "name", ag.Name)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"agent_id":         ag.ID,
		"name":             ag.Name,
		"token":            plaintext,
		"token_prefix":     ag.TokenPrefix,
		"rate_limit_rpm":   ag.RateLimitPerMinute,
		"budget_total_usd": ag.BudgetTotalUSD,
		"created_at":       ag.CreatedAt,
	})
}

// ListAgents handles GET /api/v1/admin/agents.
func (h *agentsHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	params := agent.AgentListParams{
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		params.Limit = l
	}

	agents, nextCursor, err := h.store.List(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list agents")
		return
	}

	resp := map[string]interface{}{
		"agents": agents,
	}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAgent handles GET /api/v1/admin/agents/{id}.
func (h *agentsHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id is required")
		return
	}

	ag, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, ag)
}

// DeactivateAgent handles DELETE /api/v1/admin/agents/{id}.
// Agents are deactivated rather than removed so their audit history and
// spend totals survive.
func (h *agentsHandler) DeactivateAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id is required")
		return
	}

	if err := h.store.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to deactivate agent")
		return
	}

	adminLog(r, "deactivate", "agent", id)

	w.WriteHeader(http.StatusNoContent)
}
