package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is a process-local fixed-window admitter with lazy eviction. Each
// agent has a log of admitted-request timestamps; on every call entries older
// than the trailing window are discarded before the count is checked.
//
// Because the window trails the current instant rather than smoothing
// sub-window bursts, up to 2x the nominal rate can be admitted across a
// window boundary. That behavior is the documented baseline. State is local
// to the process: replicas each enforce the limit independently.
type Window struct {
	mu           sync.Mutex
	stamps       map[string][]time.Time
	defaultLimit int
	window       time.Duration
	now          func() time.Time // injectable clock for testing
}

// NewWindow creates a Window that admits defaultLimit requests per window for
// agents without a limit of their own.
func NewWindow(defaultLimit int, window time.Duration) *Window {
	return &Window{
		stamps:       make(map[string][]time.Time),
		defaultLimit: defaultLimit,
		window:       window,
		now:          time.Now,
	}
}

// effectiveLimit returns limitPerMinute if positive, otherwise the default.
func (w *Window) effectiveLimit(limitPerMinute int) int {
	if limitPerMinute > 0 {
		return limitPerMinute
	}
	return w.defaultLimit
}

// Admit checks whether a request from agentID is permitted. The check and the
// recording of the admitted timestamp happen under one lock, so two
// simultaneous requests can never both take the last remaining slot.
func (w *Window) Admit(_ context.Context, agentID string, limitPerMinute int) (bool, error) {
	limit := w.effectiveLimit(limitPerMinute)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	kept := w.stamps[agentID][:0]
	for _, ts := range w.stamps[agentID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		w.stamps[agentID] = kept
		return false, nil
	}

	w.stamps[agentID] = append(kept, now)
	return true, nil
}
