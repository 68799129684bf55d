// Package pipeline orchestrates the admission checks every completion
// request passes through before it is forwarded: authentication, rate
// limiting, content screening, forwarding, settlement, and auditing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calloway/promptgate/internal/audit"
	"github.com/calloway/promptgate/internal/auth"
	"github.com/calloway/promptgate/internal/screen"
	"github.com/calloway/promptgate/internal/upstream"
)

// Endpoint is the gateway surface recorded on audit entries.
const Endpoint = "/v1/chat/completions"

// Terminal rejections surfaced to the caller.
var (
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrPolicyViolation = errors.New("security policy violation: malicious prompt detected")
	ErrInvalidRequest  = errors.New("request has no messages")
)

// TokenResolver authenticates a bearer token and applies the fast-path
// admission checks.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Agent, error)
}

// Admitter is the rate-limit admission check.
type Admitter interface {
	Admit(ctx context.Context, agentID string, limitPerMinute int) (bool, error)
}

// Settler applies a settled cost to an agent's usage total.
type Settler interface {
	Settle(ctx context.Context, agentID string, costUSD float64) (float64, error)
}

// AuditWriter appends one record per terminal pipeline outcome.
type AuditWriter interface {
	Insert(ctx context.Context, rec *audit.Record) error
}

// MetricsRecorder is an optional interface for recording pipeline metrics.
type MetricsRecorder interface {
	IncOutcome(status string)
	IncRejection(stage string)
	ObserveUpstreamDuration(seconds float64)
	IncRedaction(category string)
	IncUpstreamError(errorType string)
	IncSettlementFailure()
	IncAuditWriteFailure()
	IncActiveRequests()
	DecActiveRequests()
}

// Deps holds the pipeline's collaborators.
type Deps struct {
	Resolver     TokenResolver
	Admitter     Admitter
	Screen       *screen.Screen
	Settler      Settler
	Auditor      AuditWriter
	Upstream     upstream.Client
	CostPerToken float64
}

// Pipeline runs the admission state machine for each request. Instances are
// safe for concurrent use; all mutable state lives in the collaborators.
type Pipeline struct {
	resolver     TokenResolver
	admitter     Admitter
	screen       *screen.Screen
	settler      Settler
	auditor      AuditWriter
	upstream     upstream.Client
	costPerToken float64
	metrics      MetricsRecorder
	now          func() time.Time // injectable clock for testing
}

// New creates a Pipeline from its collaborators.
func New(deps Deps) *Pipeline {
	return &Pipeline{
		resolver:     deps.Resolver,
		admitter:     deps.Admitter,
		screen:       deps.Screen,
		settler:      deps.Settler,
		auditor:      deps.Auditor,
		upstream:     deps.Upstream,
		costPerToken: deps.CostPerToken,
		now:          time.Now,
	}
}

// SetMetrics sets the optional metrics recorder.
func (p *Pipeline) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

// Run executes the admission pipeline for one request. On success it returns
// the provider's completion; otherwise the error identifies the rejecting
// stage. The last message's content is replaced by its sanitized form before
// forwarding; the original is never forwarded or persisted.
//
// Authentication and rate-limit rejections are not audited: the request is
// either not attributable or not billable, and auditing credential probing
// would flood the trail. Blocked, failed, and successful outcomes each
// produce exactly one audit record.
func (p *Pipeline) Run(ctx context.Context, token string, req *upstream.CompletionRequest) (*upstream.Completion, error) {
	start := p.now()
	requestID := uuid.NewString()

	if p.metrics != nil {
		p.metrics.IncActiveRequests()
		defer p.metrics.DecActiveRequests()
	}

	if len(req.Messages) == 0 {
		return nil, ErrInvalidRequest
	}

	// AUTHENTICATING
	agent, err := p.resolver.Resolve(ctx, token)
	if err != nil {
		p.incRejection("auth")
		return nil, err
	}

	// RATE_CHECKING
	admitted, err := p.admitter.Admit(ctx, agent.ID, agent.RateLimitPerMinute)
	if err != nil {
		// A broken limiter backend must not take the gateway down with it.
		// Budget enforcement still applies, so fail open and log loudly.
		slog.Error("rate admitter unavailable, admitting request",
			"request_id", requestID, "agent_id", agent.ID, "error", err)
		admitted = true
	}
	if !admitted {
		p.incRejection("rate_limit")
		return nil, ErrRateLimited
	}

	// SCREENING
	last := &req.Messages[len(req.Messages)-1]
	if p.screen.ScreenForInjection(last.Content) {
		p.incRejection("injection")
		p.writeAudit(ctx, &audit.Record{
			RequestID: requestID,
			AgentID:   agent.ID,
			Endpoint:  Endpoint,
			Model:     req.Model,
			Status:    audit.StatusBlocked,
			RiskFlags: []string{screen.InjectionFlag},
			Timestamp: p.now(),
		})
		return nil, ErrPolicyViolation
	}

	sanitized, riskFlags := p.screen.Redact(last.Content)
	last.Content = sanitized
	for _, category := range riskFlags {
		if p.metrics != nil {
			p.metrics.IncRedaction(category)
		}
	}

	// FORWARDING
	upstreamStart := p.now()
	completion, err := p.upstream.Complete(ctx, req)
	if p.metrics != nil {
		p.metrics.ObserveUpstreamDuration(p.now().Sub(upstreamStart).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncUpstreamError(upstreamErrorType(err))
		}
		p.writeAudit(ctx, &audit.Record{
			RequestID:      requestID,
			AgentID:        agent.ID,
			Endpoint:       Endpoint,
			Model:          req.Model,
			InputSanitized: sanitized,
			LatencyMs:      p.now().Sub(start).Milliseconds(),
			Status:         audit.StatusFailed,
			RiskFlags:      riskFlags,
			Timestamp:      p.now(),
		})
		return nil, fmt.Errorf("forwarding to upstream: %w", err)
	}

	// SETTLING
	costUSD := float64(completion.Usage.TotalTokens) * p.costPerToken
	if _, serr := p.settler.Settle(ctx, agent.ID, costUSD); serr != nil {
		// Settlement failure is a billing-accuracy concern, not a reason to
		// withhold an already-obtained completion.
		slog.Error("budget settlement failed",
			"request_id", requestID, "agent_id", agent.ID,
			"cost_usd", costUSD, "error", serr)
		if p.metrics != nil {
			p.metrics.IncSettlementFailure()
		}
	}

	// AUDITED
	p.writeAudit(ctx, &audit.Record{
		RequestID:      requestID,
		AgentID:        agent.ID,
		Endpoint:       Endpoint,
		Model:          req.Model,
		InputSanitized: sanitized,
		TokensUsed:     completion.Usage.TotalTokens,
		LatencyMs:      p.now().Sub(start).Milliseconds(),
		CostUSD:        costUSD,
		Status:         audit.StatusSuccess,
		RiskFlags:      riskFlags,
		Timestamp:      p.now(),
	})

	return completion, nil
}

// writeAudit appends the terminal record for this run. The write is
// best-effort: the caller-facing result stands even if it fails, but a
// failure is an audit-trail gap and is logged accordingly.
func (p *Pipeline) writeAudit(ctx context.Context, rec *audit.Record) {
	if p.metrics != nil {
		p.metrics.IncOutcome(rec.Status)
	}
	if err := p.auditor.Insert(ctx, rec); err != nil {
		slog.Error("audit write failed, trail has a gap",
			"request_id", rec.RequestID, "agent_id", rec.AgentID,
			"status", rec.Status, "error", err)
		if p.metrics != nil {
			p.metrics.IncAuditWriteFailure()
		}
	}
}

func (p *Pipeline) incRejection(stage string) {
	if p.metrics != nil {
		p.metrics.IncRejection(stage)
	}
}

// upstreamErrorType buckets forwarding failures for the upstream error
// counter.
func upstreamErrorType(err error) string {
	var provErr *upstream.ProviderError
	switch {
	case errors.As(err, &provErr):
		return "provider"
	case errors.Is(err, upstream.ErrTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}
