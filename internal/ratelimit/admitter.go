// Package ratelimit provides per-agent request admission over a trailing
// 60-second window. Two implementations exist: a process-local window for
// single-instance deployments, and a Redis-backed admitter that enforces the
// limit across replicas.
package ratelimit

import "context"

// Admitter decides whether a request from an agent may proceed. An admitted
// request is recorded against the agent's window; a rejected one is not.
type Admitter interface {
	Admit(ctx context.Context, agentID string, limitPerMinute int) (bool, error)
}
