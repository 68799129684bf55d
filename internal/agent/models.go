package agent

import "time"

// Agent represents a registered gateway caller.
type Agent struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	TokenHash          string    `json:"-"`
	TokenPrefix        string    `json:"token_prefix"`
	RateLimitPerMinute int       `json:"rate_limit_rpm"`
	BudgetTotalUSD     float64   `json:"budget_total_usd"`
	BudgetUsedUSD      float64   `json:"budget_used_usd"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateAgentInput holds the fields required to register a new agent.
type CreateAgentInput struct {
	Name               string  `json:"name"`
	TokenHash          string  `json:"token_hash"`
	TokenPrefix        string  `json:"token_prefix"`
	RateLimitPerMinute int     `json:"rate_limit_rpm"`
	BudgetTotalUSD     float64 `json:"budget_total_usd"`
}

// AgentListParams controls cursor-based pagination for listing agents.
type AgentListParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}
