package audit

import "time"

// Terminal pipeline outcomes.
const (
	StatusBlocked = "BLOCKED"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Record is one append-only audit entry per admission attempt. Records are
// immutable once written; retention is an external concern.
type Record struct {
	RequestID      string    `json:"request_id"`
	AgentID        string    `json:"agent_id"`
	Endpoint       string    `json:"endpoint,omitempty"`
	Model          string    `json:"model,omitempty"`
	InputSanitized string    `json:"input_sanitized,omitempty"`
	TokensUsed     int       `json:"tokens_used"`
	LatencyMs      int64     `json:"latency_ms"`
	CostUSD        float64   `json:"cost_usd"`
	Status         string    `json:"status"`
	RiskFlags      []string  `json:"risk_flags"`
	Timestamp      time.Time `json:"timestamp"`
}
