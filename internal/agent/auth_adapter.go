package agent

import (
	"context"

	"github.com/calloway/promptgate/internal/auth"
)

// AuthAdapter wraps an agent Store to satisfy auth.AgentLookup.
type AuthAdapter struct {
	store *Store
}

// NewAuthAdapter creates an adapter that bridges agent.Store to auth.AgentLookup.
func NewAuthAdapter(store *Store) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// GetByTokenHash looks up an agent by token hash and converts to auth.Agent.
func (a *AuthAdapter) GetByTokenHash(ctx context.Context, hash string) (*auth.Agent, error) {
	ag, err := a.store.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &auth.Agent{
		ID:                 ag.ID,
		Name:               ag.Name,
		RateLimitPerMinute: ag.RateLimitPerMinute,
		BudgetTotalUSD:     ag.BudgetTotalUSD,
		BudgetUsedUSD:      ag.BudgetUsedUSD,
		Active:             ag.Active,
	}, nil
}
