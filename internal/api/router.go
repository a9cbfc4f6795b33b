package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/api/handlers"
	mw "github.com/doxalabs/doxa/internal/api/middleware"
	"github.com/doxalabs/doxa/internal/config"
	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/service"
)

// Deps carries the backend stores and provider clients the app runs on. The
// caller picks the backend (postgres, sqlite, memory) and hands over the
// capability interfaces; the app never sees the concrete types.
type Deps struct {
	Memories  domain.MemoryStore
	Beliefs   domain.BeliefStore
	Conflicts domain.ConflictStore
	Graph     domain.GraphStore
	Embedder  domain.EmbeddingClient
	Extractor domain.ExtractionClient

	// Ping probes backend liveness for /health; nil means always healthy.
	Ping func(context.Context) error

	Config *config.Config
	Logger *zap.Logger
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Maintenance *service.MaintenanceService
	Counters    *service.Counters

	deps         Deps
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(deps Deps) *App {
	cfg := deps.Config
	logger := deps.Logger

	// Services
	counters := service.NewCounters()
	categorizer := service.NewCategorizationService(deps.Extractor, logger)
	encoder := service.NewEncoderService(deps.Memories, deps.Embedder, deps.Extractor, cfg.Engine, logger)
	analyzer := service.NewAnalyzerService(deps.Beliefs, deps.Conflicts, deps.Extractor, cfg.Engine, counters, logger)
	relationships := service.NewRelationshipService(deps.Graph, deps.Beliefs, cfg.Engine, counters, logger)
	ingestion := service.NewIngestionService(categorizer, encoder, analyzer, cfg.Engine, logger)
	maintenance := service.NewMaintenanceService(deps.Graph, cfg.MaintenanceInterval, cfg.RelationshipRetentionDays, logger)

	// Handlers
	ingestHandler := handlers.NewIngestHandler(ingestion)
	memoryHandler := handlers.NewMemoryHandler(encoder)
	beliefHandler := handlers.NewBeliefHandler(analyzer, relationships)
	conflictHandler := handlers.NewConflictHandler(analyzer)
	relationshipHandler := handlers.NewRelationshipHandler(relationships)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Maintenance: maintenance,
		Counters:    counters,
		deps:        deps,
		startTime:   time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", ingestHandler.Ingest)
		r.Post("/ingest/validate", ingestHandler.Validate)

		r.Route("/memories", func(r chi.Router) {
			r.Get("/search", memoryHandler.Search)
			r.Get("/", memoryHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Delete("/", memoryHandler.Delete)
				r.Post("/reanalyze", ingestHandler.Reanalyze)
			})
		})

		r.Route("/beliefs", func(r chi.Router) {
			r.Get("/", beliefHandler.List)
			r.Get("/related", beliefHandler.Related)
			r.Get("/low-confidence", beliefHandler.LowConfidence)
			r.Get("/deprecated", beliefHandler.Deprecated)
			r.Get("/distribution", beliefHandler.Distribution)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", beliefHandler.GetByID)
				r.Put("/confidence", beliefHandler.UpdateConfidence)
				r.Post("/deactivate", beliefHandler.Deactivate)
				r.Post("/deprecate", beliefHandler.Deprecate)
			})
		})

		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", conflictHandler.List)
			r.Post("/review", conflictHandler.Review)
			r.Get("/strategies", conflictHandler.GetStrategies)
			r.Put("/strategies", conflictHandler.UpdateStrategies)
			r.Post("/{id}/resolve", conflictHandler.Resolve)
		})

		r.Route("/relationships", func(r chi.Router) {
			r.Post("/", relationshipHandler.Create)
			r.Get("/", relationshipHandler.List)
			r.Post("/cleanup", relationshipHandler.Cleanup)
			r.Get("/belief/{id}", relationshipHandler.ForBelief)
			r.Route("/graph", func(r chi.Router) {
				r.Get("/related/{id}", relationshipHandler.Related)
				r.Get("/path", relationshipHandler.Path)
				r.Get("/clusters", relationshipHandler.Clusters)
				r.Get("/conflicts", relationshipHandler.Conflicts)
				r.Get("/validate", relationshipHandler.Validate)
			})
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", relationshipHandler.GetByID)
				r.Put("/", relationshipHandler.Update)
				r.Delete("/", relationshipHandler.Delete)
			})
		})
	})

	return app
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.deps.Ping != nil {
			if err := app.deps.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		counts := map[string]any{}
		if n, err := app.deps.Memories.Count(r.Context()); err == nil {
			counts["memories"] = n
		}
		if n, err := app.deps.Beliefs.Count(r.Context()); err == nil {
			counts["beliefs"] = n
		}
		if n, err := app.deps.Conflicts.Count(r.Context()); err == nil {
			counts["conflicts"] = n
		}
		if n, err := app.deps.Graph.Count(r.Context()); err == nil {
			counts["relationships"] = n
		}

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"engine":         app.Counters.Snapshot(),
			"stored":         counts,
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
