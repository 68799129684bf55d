package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calloway/promptgate/internal/agent"
	"github.com/calloway/promptgate/internal/audit"
	"github.com/calloway/promptgate/internal/auth"
	"github.com/calloway/promptgate/internal/metrics"
	"github.com/calloway/promptgate/internal/pipeline"
)

// Pinger reports backing-store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Pipeline       *pipeline.Pipeline
	AgentStore     *agent.Store
	AuditStore     *audit.Store
	Metrics        *metrics.Metrics
	DB             Pinger
	AdminKey       string
	AdminKeyHash   string
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)

	// Handlers.
	completions := newCompletionsHandler(deps.Pipeline)
	agents := newAgentsHandler(deps.AgentStore)
	auditLogs := newAuditHandler(deps.AuditStore)

	// Health check with backing-store ping.
	r.Get("/health", healthHandler(deps.DB))

	// Prometheus exposition.
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Gateway surface (agent bearer token, checked inside the pipeline).
	r.Group(func(gr chi.Router) {
		gr.Use(metricsMiddleware(deps.Metrics, "gateway"))
		gr.Post(pipeline.Endpoint, completions.CreateCompletion)
	})

	// Admin routes (require admin key).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(metricsMiddleware(deps.Metrics, "admin"))
		ar.Use(auth.AdminAuthMiddleware(deps.AdminKey, deps.AdminKeyHash))

		ar.Post("/agents", agents.CreateAgent)
		ar.Get("/agents", agents.ListAgents)
		ar.Get("/agents/{id}", agents.GetAgent)
		ar.Delete("/agents/{id}", agents.DeactivateAgent)

		ar.Get("/audit-logs", auditLogs.ListAuditLogs)

		if deps.Metrics != nil {
			ar.Get("/metrics", deps.Metrics.SummaryHandler())
		}
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "degraded",
					"database": "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
