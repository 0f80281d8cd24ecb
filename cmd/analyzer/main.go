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

	"github.com/bmcp/codegraph/internal/analyzer"
	pythonanalyzer "github.com/bmcp/codegraph/internal/analyzer/python"
	"github.com/bmcp/codegraph/internal/analyzer/sqlddl"
	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/queue"
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

	registry := analyzer.NewRegistry()
	registry.Register(pythonanalyzer.New(logger))
	registry.Register(sqlddl.New(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub := queue.NewPublisher(vkClient, cfg.Queue, logger)

	var wg sync.WaitGroup
	for _, lang := range cfg.Queue.Languages() {
		a, err := registry.For(lang)
		if err != nil {
			logger.Warn("no analyzer for configured language, skipping",
				slog.String("language", lang))
			continue
		}

		worker := analyzer.NewWorker(a, cfg.Watcher.CodebaseRoot, pub, logger)
		consumer := queue.NewConsumer(vkClient, queue.AnalysisStream(lang), "analyzer-"+lang+"-1", logger)
		if err := consumer.EnsureGroup(ctx); err != nil {
			logger.Error("failed to ensure consumer group",
				slog.String("language", lang), slog.String("error", err.Error()))
			os.Exit(2)
		}

		wg.Add(1)
		go func(lang string) {
			defer wg.Done()
			logger.Info("analyzer consuming",
				slog.String("language", lang),
				slog.String("stream", queue.AnalysisStream(lang)))
			if err := consumer.Consume(ctx, worker.HandleJob); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer error",
					slog.String("language", lang), slog.String("error", err.Error()))
			}
		}(lang)
	}

	wg.Wait()
	logger.Info("analyzer stopped")
}
