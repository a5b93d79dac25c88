package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/jsonl"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/postgres"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/qdrant"
	redisadapter "github.com/custodia-labs/sercha-rag/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/config"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Shut down gracefully on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, version, buildServices); err != nil {
		stop()
		os.Exit(1)
	}
}

// buildServices wires adapters into the application services.
func buildServices(ctx context.Context, cfg *config.Config) (*cli.Services, error) {
	// stdout belongs to command output and the MCP transport
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*cli.Services, error) {
		_ = closeAll()
		return nil, err
	}

	// ===== Vector store =====
	var (
		store driven.VectorStore
		db    *postgres.DB
	)
	switch cfg.VectorStore {
	case config.StorePostgres:
		dbConfig := postgres.DefaultConfig(cfg.Database.URL)
		if cfg.Database.MaxOpenConns > 0 {
			dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
		}
		var err error
		db, err = postgres.Connect(ctx, dbConfig)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			return fail(fmt.Errorf("initialize schema: %w", err))
		}
		store = postgres.NewVectorStore(db, logger)
		logger.Debug("pgvector store ready")
	default:
		qs, err := qdrant.NewVectorStore(qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
			Logger: logger,
		})
		if err != nil {
			return fail(err)
		}
		store = qs
		logger.Debug("qdrant store ready", "host", cfg.Qdrant.Host, "port", cfg.Qdrant.Port)
	}
	closers = append(closers, store.Close)

	// ===== Redis (optional): lock and embedding cache =====
	var (
		lock  driven.DistributedLock
		cache driven.EmbeddingCache
	)
	if cfg.Redis.URL != "" {
		client, err := redisadapter.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client.Close)
		lock = redisadapter.NewLock(client)
		cache = redisadapter.NewEmbeddingCache(client, cfg.Embedding.CacheTTL())
		logger.Debug("redis connected, distributed lock and embedding cache enabled")
	} else if db != nil {
		lock = postgres.NewAdvisoryLock(db)
	}

	// ===== Embedding gateway =====
	factory := ai.NewFactory(ai.FactoryConfig{
		Cache:             cache,
		RequestsPerSecond: cfg.Embedding.RPS,
		Burst:             cfg.Embedding.BatchSize,
		Logger:            logger,
	})
	embedder, err := factory.CreateEmbeddingService(cfg.Embedding.Settings())
	if err != nil {
		return fail(err)
	}
	closers = append(closers, embedder.Close)

	chunker, err := postprocessors.NewChunker(cfg.Chunk)
	if err != nil {
		return fail(err)
	}

	// ===== Services =====
	pipelineConfig := services.DefaultIngestionPipelineConfig()
	pipelineConfig.Store = store
	pipelineConfig.Embedder = embedder
	pipelineConfig.Chunker = chunker
	pipelineConfig.Lock = lock
	pipelineConfig.Collection = cfg.Collection.Name
	pipelineConfig.Distance = cfg.Distance()
	pipelineConfig.Concurrency = cfg.Ingest.Concurrency
	pipelineConfig.BatchSize = cfg.Ingest.BatchSize
	pipelineConfig.MaxRetries = cfg.Ingest.MaxRetries
	pipelineConfig.InitialBackoff = cfg.Ingest.InitialBackoff()
	pipelineConfig.MaxBackoff = cfg.Ingest.MaxBackoff()
	pipelineConfig.Logger = logger
	pipeline, err := services.NewIngestionPipeline(pipelineConfig)
	if err != nil {
		return fail(err)
	}

	retriever, err := services.NewRetriever(services.RetrieverConfig{
		Store:        store,
		Embedder:     embedder,
		Collection:   cfg.Collection.Name,
		MaxLimit:     cfg.Search.MaxLimit,
		QueryTimeout: cfg.Search.Timeout(),
		Logger:       logger,
	})
	if err != nil {
		return fail(err)
	}

	checks := []cli.Check{{Name: "embedding gateway " + embedder.Model(), Run: embedder.HealthCheck}}
	if lock != nil {
		checks = append(checks, cli.Check{Name: "lock backend", Run: lock.Ping})
	}

	return &cli.Services{
		Ingestion: pipeline,
		Search:    retriever,
		Source: func(path string) driven.DocumentSource {
			return jsonl.NewSource(path)
		},
		Checks: checks,
		Close:  closeAll,
	}, nil
}
