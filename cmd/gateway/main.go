package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bmcp/codegraph/internal/api"
	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/graph"
	"github.com/bmcp/codegraph/internal/queue"
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

	ctx := context.Background()

	// Neo4j
	graphClient, err := graph.NewClient(cfg.Neo4j, logger)
	if err != nil {
		logger.Error("failed to create neo4j client", slog.String("error", err.Error()))
		os.Exit(2)
	}
	defer graphClient.Close(ctx)
	if err := graphClient.EnsureIndexes(ctx); err != nil {
		logger.Warn("neo4j ensure indexes failed", slog.String("error", err.Error()))
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

	deps := api.RouterDeps{
		Graph:     graphClient,
		Publisher: queue.NewPublisher(vkClient, cfg.Queue, logger),
	}

	// Postgres mirror (optional)
	mirror, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn("postgres connection failed, symbol listing disabled", slog.String("error", err.Error()))
	} else {
		deps.Mirror = mirror
		defer mirror.Close()
		logger.Info("connected to postgres")
	}

	router := api.NewRouter(logger, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting gateway", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingest.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("gateway stopped")
}
