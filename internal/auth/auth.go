package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Agent represents an authenticated gateway agent.
type Agent struct {
	ID                 string
	Name               string
	RateLimitPerMinute int
	BudgetTotalUSD     float64
	BudgetUsedUSD      float64
	Active             bool
}

// Token holds the hashed credential and a short prefix for identification.
type Token struct {
	Hash   string
	Prefix string // first 12 characters of the plaintext token
}

// Resolution failures. The pipeline maps these to 401/403/402 respectively.
var (
	ErrInvalidToken    = errors.New("invalid agent token")
	ErrAgentSuspended  = errors.New("agent is suspended")
	ErrBudgetExhausted = errors.New("agent budget exhausted")
)

// AgentLookup is the interface for retrieving agents by their token hash.
type AgentLookup interface {
	GetByTokenHash(ctx context.Context, hash string) (*Agent, error)
}

// Service resolves bearer tokens to agents and applies the fast-path
// admission checks (suspension, budget ceiling).
type Service struct {
	store AgentLookup
}

// NewService creates a new authentication service.
func NewService(store AgentLookup) *Service {
	return &Service{store: store}
}

// Resolve looks up the agent owning the given plaintext token. It fails with
// ErrInvalidToken when no agent matches, ErrAgentSuspended for inactive
// agents, and ErrBudgetExhausted when the agent's usage has reached its
// ceiling. The budget check here is a cheap pre-filter; settlement remains
// the authoritative accounting step.
func (s *Service) Resolve(ctx context.Context, token string) (*Agent, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	agent, err := s.store.GetByTokenHash(ctx, HashToken(token))
	if err != nil || agent == nil {
		return nil, ErrInvalidToken
	}
	if !agent.Active {
		return nil, ErrAgentSuspended
	}
	if agent.BudgetUsedUSD >= agent.BudgetTotalUSD {
		return nil, ErrBudgetExhausted
	}

	return agent, nil
}

// GenerateToken creates a new agent token with the "pgw_" prefix followed by
// 32 URL-safe random characters. It returns the Token struct (containing the
// hash and prefix) and the full plaintext, which is shown to the caller
// exactly once.
func GenerateToken() (Token, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return Token{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	random := base64.RawURLEncoding.EncodeToString(b)
	plaintext := "pgw_" + random

	tok := Token{
		Hash:   HashToken(plaintext),
		Prefix: plaintext[:12],
	}

	return tok, plaintext, nil
}

// HashToken returns the hex-encoded SHA-256 hash of the given plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
