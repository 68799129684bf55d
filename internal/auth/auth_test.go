package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// --- mock store ---

type mockAgentLookup struct {
	agents map[string]*Agent
}

func (m *mockAgentLookup) GetByTokenHash(_ context.Context, hash string) (*Agent, error) {
	agent, ok := m.agents[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return agent, nil
}

// --- GenerateToken tests ---

func TestGenerateToken_PrefixAndLength(t *testing.T) {
	tok, plaintext, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	if !strings.HasPrefix(plaintext, "pgw_") {
		t.Errorf("plaintext token should start with 'pgw_', got %q", plaintext)
	}

	// "pgw_" (4) + 32 random chars = 36
	if len(plaintext) != 36 {
		t.Errorf("expected plaintext length 36, got %d", len(plaintext))
	}

	if tok.Prefix != plaintext[:12] {
		t.Errorf("expected prefix %q, got %q", plaintext[:12], tok.Prefix)
	}

	if tok.Hash != HashToken(plaintext) {
		t.Error("hash does not match HashToken of plaintext")
	}
}

func TestGenerateToken_Unique(t *testing.T) {
	_, t1, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	_, t2, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if t1 == t2 {
		t.Error("two generated tokens should not collide")
	}
}

// --- Resolve tests ---

func TestResolve(t *testing.T) {
	goodToken := "pgw_abcdefghijklmnopqrstuvwxyz012345"
	store := &mockAgentLookup{agents: map[string]*Agent{
		HashToken(goodToken): {
			ID:                 "agent-1",
			Name:               "crawler",
			RateLimitPerMinute: 60,
			BudgetTotalUSD:     10,
			BudgetUsedUSD:      1,
			Active:             true,
		},
	}}
	svc := NewService(store)

	tests := []struct {
		name    string
		mutate  func(a *Agent)
		token   string
		wantErr error
	}{
		{"valid token", nil, goodToken, nil},
		{"empty token", nil, "", ErrInvalidToken},
		{"unknown token", nil, "pgw_nope", ErrInvalidToken},
		{"suspended agent", func(a *Agent) { a.Active = false }, goodToken, ErrAgentSuspended},
		{"budget exhausted", func(a *Agent) { a.BudgetUsedUSD = 10 }, goodToken, ErrBudgetExhausted},
		{"budget over ceiling", func(a *Agent) { a.BudgetUsedUSD = 12.5 }, goodToken, ErrBudgetExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := store.agents[HashToken(goodToken)]
			saved := *a
			if tt.mutate != nil {
				tt.mutate(a)
			}
			defer func() { *a = saved }()

			got, err := svc.Resolve(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.ID != "agent-1" {
				t.Errorf("expected agent-1, got %q", got.ID)
			}
		})
	}
}

// --- middleware tests ---

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	tests := []struct {
		name       string
		adminKey   string
		adminHash  string
		authHeader string
		wantStatus int
	}{
		{"plain key match", "secret", "", "Bearer secret", http.StatusOK},
		{"plain key mismatch", "secret", "", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", "secret", "", "", http.StatusUnauthorized},
		{"malformed header", "secret", "", "Basic secret", http.StatusUnauthorized},
		{"bcrypt hash match", "", string(hash), "Bearer hashed-key", http.StatusOK},
		{"bcrypt hash mismatch", "", string(hash), "Bearer other", http.StatusUnauthorized},
		{"hash takes precedence", "plain", string(hash), "Bearer plain", http.StatusUnauthorized},
		{"no key configured", "", "", "Bearer anything", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := AdminAuthMiddleware(tt.adminKey, tt.adminHash)
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer lower-case-scheme")
	if got := ExtractBearerToken(req); got != "lower-case-scheme" {
		t.Errorf("expected case-insensitive scheme, got %q", got)
	}
}
