// Package ledger applies settled request costs to agent budgets.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownAgent is returned when settlement targets an agent that no longer
// exists.
var ErrUnknownAgent = errors.New("unknown agent")

// Ledger tracks per-agent monetary usage against the durable store.
type Ledger struct {
	pool *pgxpool.Pool
}

// New creates a Ledger backed by the given connection pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Settle atomically increments the agent's used budget by costUSD and returns
// the new total. The increment is a single read-modify-write inside the
// database, so concurrent settlements for the same agent cannot lose updates
// and settlements for different agents never block each other.
//
// Settlement is not a gate: a request already in flight always settles, even
// past the agent's ceiling. The ceiling is enforced at admission time.
func (l *Ledger) Settle(ctx context.Context, agentID string, costUSD float64) (float64, error) {
	var newUsed float64
	err := l.pool.QueryRow(ctx,
		`UPDATE agents
		 SET budget_used_usd = budget_used_usd + $1
		 WHERE id = $2
		 RETURNING budget_used_usd`,
		costUSD, agentID,
	).Scan(&newUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownAgent
	}
	if err != nil {
		return 0, fmt.Errorf("settling usage for agent %s: %w", agentID, err)
	}
	return newUsed, nil
}
