package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doxalabs/doxa/internal/api"
	"github.com/doxalabs/doxa/internal/config"
	"github.com/doxalabs/doxa/internal/embedding"
	"github.com/doxalabs/doxa/internal/extraction"
	"github.com/doxalabs/doxa/internal/inmem"
	"github.com/doxalabs/doxa/internal/sqlite"
	"github.com/doxalabs/doxa/internal/store"
	"github.com/doxalabs/doxa/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	deps, cleanup, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage backend", zap.String("backend", cfg.Backend), zap.Error(err))
	}
	defer cleanup()

	deps.Extractor, err = extraction.NewClient(cfg.ExtractionProvider, cfg.ExtractionAPIKey, cfg.ExtractionModel, logger)
	if err != nil {
		logger.Fatal("failed to build extraction client", zap.String("provider", cfg.ExtractionProvider), zap.Error(err))
	}
	deps.Embedder, err = embedding.NewClient(cfg.EmbeddingProvider, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.Engine.EmbeddingDimension)
	if err != nil {
		logger.Fatal("failed to build embedding client", zap.String("provider", cfg.EmbeddingProvider), zap.Error(err))
	}
	logger.Info("providers initialized",
		zap.String("extraction", cfg.ExtractionProvider),
		zap.String("embedding", cfg.EmbeddingProvider))

	deps.Config = cfg
	deps.Logger = logger

	app := api.NewApp(deps)
	app.Maintenance.Start()

	addr := cfg.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("backend", cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Maintenance.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openBackend builds the store set for the configured backend and returns a
// cleanup to run at exit. Migrations run (and the deployed vector dimension
// is checked) for postgres; sqlite applies its schema on open.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (api.Deps, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return api.Deps{}, nil, err
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return api.Deps{}, nil, err
		}
		if err := db.ValidateEmbeddingDimension(ctx, cfg.Engine.EmbeddingDimension); err != nil {
			db.Close()
			return api.Deps{}, nil, err
		}
		logger.Info("connected to postgres")
		return api.Deps{
			Memories:  store.NewMemoryStore(db),
			Beliefs:   store.NewBeliefStore(db),
			Conflicts: store.NewConflictStore(db),
			Graph:     store.NewGraphStore(db),
			Ping:      db.Pool().Ping,
		}, func() { db.Close() }, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, cfg.Engine.EmbeddingDimension)
		if err != nil {
			return api.Deps{}, nil, err
		}
		logger.Info("opened sqlite database", zap.String("path", cfg.SQLitePath))
		return api.Deps{
			Memories:  sqlite.NewMemoryStore(db),
			Beliefs:   sqlite.NewBeliefStore(db),
			Conflicts: sqlite.NewConflictStore(db),
			Graph:     sqlite.NewGraphStore(db),
			Ping:      db.Ping,
		}, func() { _ = db.Close() }, nil

	default:
		db := inmem.Open()
		logger.Info("using in-memory backend; data will not survive restarts")
		return api.Deps{
			Memories:  inmem.NewMemoryStore(db),
			Beliefs:   inmem.NewBeliefStore(db),
			Conflicts: inmem.NewConflictStore(db),
			Graph:     inmem.NewGraphStore(db),
		}, func() {}, nil
	}
}

func newLogger(level string) *zap.Logger {
	zc := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zc.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
