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
	"github.com/bmcp/codegraph/internal/watch"
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

	vkClient, err := queue.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(2)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub := queue.NewPublisher(vkClient, cfg.Queue, logger)
	watcher := watch.New(cfg.Watcher, cfg.Queue, pub, logger)

	logger.Info("watching codebase",
		slog.String("root", cfg.Watcher.CodebaseRoot),
		slog.Duration("debounce", cfg.Watcher.Debounce))

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("watcher stopped")
}
