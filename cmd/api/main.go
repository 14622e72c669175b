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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/studypartner/backend/internal/api"
	"github.com/studypartner/backend/internal/cache"
	"github.com/studypartner/backend/internal/config"
	"github.com/studypartner/backend/internal/database"
	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/llm"
	"github.com/studypartner/backend/internal/rag"
	"github.com/studypartner/backend/internal/vectorstore"
	"github.com/studypartner/backend/pkg/chunker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, sessions disabled", "error", err)
	}
	defer rdb.Close()

	gateway := llm.NewGateway(cfg.LLM)
	embedSvc := embedding.NewService(gateway, cfg.Embedding.Model)

	index := buildIndex(db, cfg)
	if err := index.EnsureReady(ctx); err != nil {
		slog.Error("vector index not ready", "error", err)
		os.Exit(1)
	}

	sessions := cache.NewSessionStore(cache.NewCache(rdb), cfg.Session.TTL, cfg.Session.MaxTurns)
	pipeline := rag.NewPipeline(index, embedSvc, gateway, sessions, pipelineConfig(cfg))

	router := api.NewRouter(db, rdb, cfg, pipeline)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func buildIndex(db *pgxpool.Pool, cfg *config.Config) vectorstore.Index {
	if cfg.Vector.Backend == "memory" {
		return vectorstore.NewMemoryIndex(cfg.Embedding.Model, cfg.Embedding.Dimension)
	}
	return vectorstore.NewPgVectorIndex(db, cfg.Embedding.Model, cfg.Embedding.Dimension)
}

func pipelineConfig(cfg *config.Config) rag.PipelineConfig {
	return rag.PipelineConfig{
		ChunkOpts: chunker.Options{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
			MinChunkSize: cfg.Ingest.MinChunkSize,
		},
		DefaultTopK:  cfg.Retrieval.TopK,
		GenModel:     cfg.LLM.DefaultModel,
		GenProvider:  cfg.LLM.DefaultProvider,
		CallTimeout:  cfg.Ingest.CallTimeout,
		HistoryDepth: 3,
		Ingestor: rag.IngestorConfig{
			BatchSize:   cfg.Ingest.BatchSize,
			MaxAttempts: cfg.Ingest.MaxAttempts,
			Concurrency: cfg.Ingest.Concurrency,
			CallTimeout: cfg.Ingest.CallTimeout,
		},
	}
}
