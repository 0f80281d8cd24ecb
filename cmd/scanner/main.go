package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/internal/scan"
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

	vkClient, err := queue.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(2)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	// Postgres mirror (optional) backs wipe_existing
	var wipers []scan.Wiper
	mirror, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn("postgres connection failed, wipe_existing disabled", slog.String("error", err.Error()))
	} else {
		wipers = append(wipers, mirror)
		defer mirror.Close()
		logger.Info("connected to postgres")
	}

	pub := queue.NewPublisher(vkClient, cfg.Queue, logger)
	orchestrator := scan.New(cfg.Scan, cfg.Watcher, cfg.Queue, pub, wipers, logger)

	consumer := queue.NewConsumer(vkClient, queue.ScanStream, "scanner-1", logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to ensure consumer group", slog.String("error", err.Error()))
		os.Exit(2)
	}

	logger.Info("scanner consuming", slog.String("stream", queue.ScanStream))
	if err := consumer.Consume(ctx, orchestrator.HandleTrigger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("scanner stopped")
}
