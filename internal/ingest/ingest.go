// Package ingest consumes analyzer results and applies them to the graph:
// resolve hint types, upsert nodes and relationships, apply deletions, and
// periodically drain pending relationships that opportunistic resolution
// missed.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/pkg/models"
)

// GraphStore is the slice of the graph client the worker writes through.
type GraphStore interface {
	PruneFile(ctx context.Context, filePath string, keepGIDs []string) error
	UpsertNodes(ctx context.Context, nodes []models.NodeStub) error
	UpsertRelationships(ctx context.Context, rels []models.RelStub) error
	DeleteNodes(ctx context.Context, gids []string) error
	DeleteRelationships(ctx context.Context, dels []models.RelDeletion) error
	ResolveAllPending(ctx context.Context, batchSize int) (int, error)
}

// Resolver canonicalizes an analyzer result before it is written.
type Resolver interface {
	Resolve(ctx context.Context, result models.AnalyzerResult) models.AnalyzerResult
}

// Mirror receives each processed result for the relational side store. May
// be nil when mirroring is disabled.
type Mirror interface {
	RecordResult(ctx context.Context, result models.AnalyzerResult) error
}

// Worker is the ingestion consumer plus the periodic resolution loop.
type Worker struct {
	store    GraphStore
	resolver Resolver
	mirror   Mirror
	cfg      config.IngestConfig
	logger   *slog.Logger

	// serializes resolution passes; a slow pass must not stack up behind
	// the ticker
	resolving sync.Mutex
}

func NewWorker(store GraphStore, resolver Resolver, mirror Mirror, cfg config.IngestConfig, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		resolver: resolver,
		mirror:   mirror,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleResult is the results stream consumer handler. Write failures
// return an error so the message is redelivered; a result whose payload
// decodes but cannot be used is logged and dropped.
func (w *Worker) HandleResult(ctx context.Context, payload []byte) error {
	var result models.AnalyzerResult
	if err := json.Unmarshal(payload, &result); err != nil {
		w.logger.Error("undecodable analyzer result dropped", slog.String("error", err.Error()))
		return nil
	}

	if result.Error != "" {
		w.logger.Warn("analyzer reported failure",
			slog.String("path", result.FilePath),
			slog.String("analyzer", result.Analyzer),
			slog.String("error", result.Error))
	}

	resolved := w.resolver.Resolve(ctx, result)

	// a re-analysis carries the file's full authoritative set; drop what
	// the previous version produced and the new one did not
	if resolved.FilePath != "" && len(resolved.NodesUpserted) > 0 {
		keep := make([]string, 0, len(resolved.NodesUpserted))
		for _, n := range resolved.NodesUpserted {
			keep = append(keep, n.GID)
		}
		if err := w.store.PruneFile(ctx, resolved.FilePath, keep); err != nil {
			return fmt.Errorf("prune stale state for %s: %w", resolved.FilePath, err)
		}
	}

	if len(resolved.NodesUpserted) > 0 {
		if err := w.store.UpsertNodes(ctx, resolved.NodesUpserted); err != nil {
			return fmt.Errorf("upsert nodes for %s: %w", resolved.FilePath, err)
		}
	}
	if len(resolved.RelationshipsUpserted) > 0 {
		if err := w.store.UpsertRelationships(ctx, resolved.RelationshipsUpserted); err != nil {
			return fmt.Errorf("upsert relationships for %s: %w", resolved.FilePath, err)
		}
	}
	if len(resolved.NodesDeleted) > 0 {
		if err := w.store.DeleteNodes(ctx, resolved.NodesDeleted); err != nil {
			return fmt.Errorf("delete nodes for %s: %w", resolved.FilePath, err)
		}
	}
	if len(resolved.RelationshipsDeleted) > 0 {
		if err := w.store.DeleteRelationships(ctx, resolved.RelationshipsDeleted); err != nil {
			return fmt.Errorf("delete relationships for %s: %w", resolved.FilePath, err)
		}
	}

	if w.mirror != nil {
		// mirror failures do not block graph ingestion
		if err := w.mirror.RecordResult(ctx, resolved); err != nil {
			w.logger.Warn("mirror write failed",
				slog.String("path", resolved.FilePath),
				slog.String("error", err.Error()))
		}
	}

	w.logger.Info("ingested result",
		slog.String("path", resolved.FilePath),
		slog.String("language", resolved.Language),
		slog.Int("nodes", len(resolved.NodesUpserted)),
		slog.Int("relationships", len(resolved.RelationshipsUpserted)),
		slog.Int("deleted_nodes", len(resolved.NodesDeleted)))

	// the nodes just written may complete pendings from earlier messages;
	// resolve them now instead of waiting for the next scheduled pass
	w.ResolvePendingPass(ctx)
	return nil
}

// RunResolutionLoop drains pending relationships on a fixed interval until
// ctx is cancelled.
func (w *Worker) RunResolutionLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ResolutionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.ResolvePendingPass(ctx)
		}
	}
}

// ResolvePendingPass runs one drain of the pending relationship backlog.
// Only one pass runs at a time; callers arriving mid-pass return at once.
func (w *Worker) ResolvePendingPass(ctx context.Context) {
	if !w.resolving.TryLock() {
		w.logger.Debug("resolution pass already running")
		return
	}
	defer w.resolving.Unlock()

	resolved, err := w.store.ResolveAllPending(ctx, w.cfg.RelationshipBatchSize)
	if err != nil {
		w.logger.Error("pending resolution pass failed", slog.String("error", err.Error()))
		return
	}
	if resolved > 0 {
		w.logger.Info("resolved pending relationships", slog.Int("count", resolved))
	}
}
