// Package scan walks a codebase root and enqueues one analysis job per
// supported file. Triggers arrive on the scan stream; a trigger can request
// that all previously ingested state is wiped first.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/pkg/models"
)

// Wiper clears previously ingested state ahead of a full scan.
type Wiper interface {
	Wipe(ctx context.Context) error
}

// Publisher enqueues a message onto a stream. Satisfied by queue.Publisher.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg any) error
}

// Orchestrator dispatches full-repository scans.
type Orchestrator struct {
	cfg     config.ScanConfig
	watcher config.WatcherConfig
	queues  config.QueueConfig
	pub     Publisher
	wipers  []Wiper
	logger  *slog.Logger
}

func New(cfg config.ScanConfig, watcher config.WatcherConfig, queues config.QueueConfig,
	pub Publisher, wipers []Wiper, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		watcher: watcher,
		queues:  queues,
		pub:     pub,
		wipers:  wipers,
		logger:  logger,
	}
}

// HandleTrigger is the scan stream consumer handler.
func (o *Orchestrator) HandleTrigger(ctx context.Context, payload []byte) error {
	var trigger models.ScanTrigger
	if err := json.Unmarshal(payload, &trigger); err != nil {
		return fmt.Errorf("decode scan trigger: %w", err)
	}
	if trigger.Action != "full_scan" {
		o.logger.Warn("unknown scan action ignored", slog.String("action", trigger.Action))
		return nil
	}

	root := trigger.RootPath
	if root == "" {
		root = o.watcher.CodebaseRoot
	}
	return o.Scan(ctx, root, trigger.WipeExisting)
}

// Scan walks root and enqueues one CREATED job per supported file, using a
// bounded worker pool for publishing. With wipe set, all wipers run before
// any job is enqueued.
func (o *Orchestrator) Scan(ctx context.Context, root string, wipe bool) error {
	if wipe {
		for _, w := range o.wipers {
			if err := w.Wipe(ctx); err != nil {
				return fmt.Errorf("wipe existing state: %w", err)
			}
		}
		o.logger.Info("wiped existing state before scan")
	}

	files, err := o.collectFiles(root)
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}
	o.logger.Info("scan starting",
		slog.String("root", root), slog.Int("files", len(files)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, rel := range files {
		rel := rel
		g.Go(func() error {
			lang := o.queues.LanguageForFile(rel)
			job := models.AnalysisJob{FilePath: rel, EventType: models.EventCreated, ID: uuid.NewString()}
			return o.pub.Publish(gctx, queue.AnalysisStream(lang), job)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch scan jobs: %w", err)
	}

	o.logger.Info("scan dispatched", slog.Int("files", len(files)))
	return nil
}

// collectFiles returns the repo-relative paths of every supported,
// non-ignored file under root.
func (o *Orchestrator) collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			o.logger.Warn("walk error, skipping",
				slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && o.ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if o.ignored(rel) {
			return nil
		}
		if o.queues.LanguageForFile(rel) == "" {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func (o *Orchestrator) ignored(rel string) bool {
	for _, pattern := range o.watcher.IgnoredPatterns {
		for _, candidate := range []string{pattern, "**/" + pattern, "**/" + pattern + "/**", pattern + "/**"} {
			if ok, _ := doublestar.Match(candidate, rel); ok {
				return true
			}
		}
	}
	return false
}
