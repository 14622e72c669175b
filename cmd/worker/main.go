package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/studypartner/backend/internal/config"
	"github.com/studypartner/backend/internal/database"
	"github.com/studypartner/backend/internal/document"
	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/llm"
	"github.com/studypartner/backend/internal/queue"
	"github.com/studypartner/backend/internal/queue/workers"
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
	if cfg.Vector.Backend == "memory" {
		slog.Error("VECTOR_BACKEND=memory keeps the index in a single process; the worker requires pgvector")
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	gateway := llm.NewGateway(cfg.LLM)
	embedSvc := embedding.NewService(gateway, cfg.Embedding.Model)

	index := buildIndex(db, cfg)
	if err := index.EnsureReady(ctx); err != nil {
		slog.Error("vector index not ready", "error", err)
		os.Exit(1)
	}

	pipeline := rag.NewPipeline(index, embedSvc, gateway, nil, pipelineConfig(cfg))
	docSvc := document.NewService(db)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	ingestWorker := workers.NewIngestWorker(docSvc, pipeline)
	registry.Register(queue.TypeDocumentIngest, asynq.HandlerFunc(ingestWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 4)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
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
		DefaultTopK: cfg.Retrieval.TopK,
		GenModel:    cfg.LLM.DefaultModel,
		GenProvider: cfg.LLM.DefaultProvider,
		CallTimeout: cfg.Ingest.CallTimeout,
		Ingestor: rag.IngestorConfig{
			BatchSize:   cfg.Ingest.BatchSize,
			MaxAttempts: cfg.Ingest.MaxAttempts,
			Concurrency: cfg.Ingest.Concurrency,
			CallTimeout: cfg.Ingest.CallTimeout,
		},
	}
}
