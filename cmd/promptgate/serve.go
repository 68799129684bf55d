package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/calloway/promptgate/internal/agent"
	"github.com/calloway/promptgate/internal/api"
	"github.com/calloway/promptgate/internal/audit"
	"github.com/calloway/promptgate/internal/auth"
	"github.com/calloway/promptgate/internal/config"
	"github.com/calloway/promptgate/internal/crypto"
	"github.com/calloway/promptgate/internal/ledger"
	"github.com/calloway/promptgate/internal/metrics"
	"github.com/calloway/promptgate/internal/pipeline"
	"github.com/calloway/promptgate/internal/ratelimit"
	"github.com/calloway/promptgate/internal/screen"
	"github.com/calloway/promptgate/internal/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Promptgate gateway server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	cipher, err := crypto.NewCipher(cfg.Audit.EncryptionKey)
	if err != nil {
		return err
	}

	agentStore := agent.NewStore(pool)
	auditStore := audit.NewStore(pool, cipher)
	settler := ledger.New(pool)
	authService := auth.NewService(agent.NewAuthAdapter(agentStore))

	admitter, err := buildAdmitter(cfg)
	if err != nil {
		return err
	}

	var client upstream.Client
	if cfg.Upstream.Mock {
		slog.Info("using mock upstream provider")
		client = &upstream.MockClient{}
	} else {
		client = upstream.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)
	}

	p := pipeline.New(pipeline.Deps{
		Resolver:     authService,
		Admitter:     admitter,
		Screen:       screen.New(),
		Settler:      settler,
		Auditor:      auditStore,
		Upstream:     client,
		CostPerToken: cfg.Upstream.CostPerToken,
	})
	p.SetMetrics(m)

	router := api.NewRouter(api.RouterDeps{
		Pipeline:       p,
		AgentStore:     agentStore,
		AuditStore:     auditStore,
		Metrics:        m,
		DB:             pool,
		AdminKey:       cfg.Auth.AdminKey,
		AdminKeyHash:   cfg.Auth.AdminKeyHash,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

// buildAdmitter picks the rate-limit backend. A Redis URL means replicas
// share one window; otherwise each process keeps its own.
func buildAdmitter(cfg *config.Config) (pipeline.Admitter, error) {
	if cfg.RateLimit.RedisURL == "" {
		return ratelimit.NewWindow(cfg.RateLimit.Default, cfg.RateLimit.Window), nil
	}

	opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
	if err != nil {
		return nil, err
	}
	slog.Info("using redis rate-limit backend", "addr", opts.Addr)
	return ratelimit.NewRedisAdmitter(redis.NewClient(opts), cfg.RateLimit.Default, cfg.RateLimit.Window), nil
}
