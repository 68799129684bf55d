package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/calloway/promptgate/internal/agent"
	"github.com/calloway/promptgate/internal/auth"
	"github.com/calloway/promptgate/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo agent",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	agentStore := agent.NewStore(pool)

	// Check if seed has already run.
	existing, _, err := agentStore.List(ctx, agent.AgentListParams{Limit: 1})
	if err != nil {
		return fmt.Errorf("checking existing agents: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	token, plaintext, err := auth.GenerateToken()
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	ag, err := agentStore.Create(ctx, agent.CreateAgentInput{
		Name:               "demo-agent",
		TokenHash:          token.Hash,
		TokenPrefix:        token.Prefix,
		RateLimitPerMinute: 120,
		BudgetTotalUSD:     5,
	})
	if err != nil {
		return fmt.Errorf("creating demo agent: %w", err)
	}

	slog.Info("created demo agent", "id", ag.ID, "name", ag.Name)
	fmt.Printf("\n=== Demo Agent Seeded ===\n")
	fmt.Printf("Agent:   %s (%s)\n", ag.Name, ag.ID)
	fmt.Printf("Budget:  $%.2f\n", ag.BudgetTotalUSD)
	fmt.Printf("Token:   %s\n", plaintext)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:8080/v1/chat/completions \\\n")
	fmt.Printf("    -H 'Authorization: Bearer %s' -H 'Content-Type: application/json' \\\n", plaintext)
	fmt.Printf("    -d '{\"model\":\"gpt-4o-mini\",\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n")

	return nil
}
