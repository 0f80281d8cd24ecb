package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/graph"
	"github.com/bmcp/codegraph/internal/ingest"
	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/internal/resolver"
	"github.com/bmcp/codegraph/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Neo4j
	graphClient, err := graph.NewClient(cfg.Neo4j, logger)
	if err != nil {
		logger.Error("failed to create neo4j client", slog.String("error", err.Error()))
		os.Exit(2)
	}
	defer graphClient.Close(ctx)
	if err := graphClient.Verify(ctx); err != nil {
		logger.Error("neo4j not reachable", slog.String("error", err.Error()))
		os.Exit(2)
	}
	if err := graphClient.EnsureIndexes(ctx); err != nil {
		logger.Warn("neo4j ensure indexes failed, ingestion may be slow", slog.String("error", err.Error()))
	}
	logger.Info("connected to neo4j")

	// Valkey
	vkClient, err := queue.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(2)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	// Postgres mirror (optional)
	var mirror ingest.Mirror
	pgStore, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn("postgres connection failed, mirroring disabled", slog.String("error", err.Error()))
	} else {
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure mirror schema", slog.String("error", err.Error()))
			os.Exit(2)
		}
		mirror = pgStore
		defer pgStore.Close()
		logger.Info("connected to postgres")
	}

	engine := resolver.NewEngine(graphClient, logger)
	worker := ingest.NewWorker(graphClient, engine, mirror, cfg.Ingest, logger)

	consumer := queue.NewConsumer(vkClient, queue.ResultsStream, "ingestor-1", logger).
		WithDrainTimeout(cfg.Ingest.GracefulShutdownTimeout)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to ensure consumer group", slog.String("error", err.Error()))
		os.Exit(2)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("ingestor consuming", slog.String("stream", queue.ResultsStream))
		if err := consumer.Consume(ctx, worker.HandleResult); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer error", slog.String("error", err.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("resolution loop started", slog.Duration("interval", cfg.Ingest.ResolutionInterval))
		if err := worker.RunResolutionLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("resolution loop error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down, draining in-flight work",
		slog.Duration("timeout", cfg.Ingest.GracefulShutdownTimeout))
	wg.Wait()
	logger.Info("ingestor stopped")
}
