// Package watch observes a codebase root for file changes and turns them
// into analysis jobs. Events are ignore-filtered, debounced per path, then
// published to the per-language analysis stream.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/pkg/models"
)

// Publisher enqueues a message onto a stream. Satisfied by queue.Publisher.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg any) error
}

// Watcher emits one analysis job per surviving filesystem event.
type Watcher struct {
	cfg    config.WatcherConfig
	queues config.QueueConfig
	pub    Publisher
	logger *slog.Logger

	mu        sync.Mutex
	lastEvent map[string]time.Time

	// now is replaceable in tests.
	now func() time.Time
}

func New(cfg config.WatcherConfig, queues config.QueueConfig, pub Publisher, logger *slog.Logger) *Watcher {
	return &Watcher{
		cfg:       cfg,
		queues:    queues,
		pub:       pub,
		logger:    logger,
		lastEvent: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run watches the codebase root until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addWatches(fsw, w.cfg.CodebaseRoot); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.CodebaseRoot, err)
	}
	w.logger.Info("watching codebase", slog.String("root", w.cfg.CodebaseRoot))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// addWatches registers the root and every non-ignored subdirectory.
func (w *Watcher) addWatches(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.relPath(path); rel != "." && w.ignored(rel) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	eventType, ok := classify(event.Op)
	if !ok {
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		// new directories must be watched; everything else about
		// directories is uninteresting
		if eventType == models.EventCreated && !w.ignored(w.relPath(event.Name)) {
			if err := fsw.Add(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					slog.String("path", event.Name), slog.String("error", err.Error()))
			}
		}
		return
	}

	rel := w.relPath(event.Name)
	if !w.shouldEmit(rel, eventType, w.now()) {
		return
	}

	lang := w.queues.LanguageForFile(rel)
	if lang == "" {
		w.logger.Debug("no analyzer for file", slog.String("path", rel))
		return
	}

	job := models.AnalysisJob{FilePath: rel, EventType: eventType, ID: uuid.NewString()}
	if err := w.pub.Publish(ctx, queue.AnalysisStream(lang), job); err != nil {
		w.logger.Error("publish analysis job",
			slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Info("queued analysis job",
		slog.String("path", rel),
		slog.String("event", string(eventType)),
		slog.String("language", lang))
}

// shouldEmit applies ignore filtering, temp-file filtering, extension
// filtering and debouncing. DELETED events skip the extension filter and
// the debounce window, and clear the path's debounce entry.
func (w *Watcher) shouldEmit(rel string, eventType models.EventType, at time.Time) bool {
	if w.ignored(rel) || tempFile(filepath.Base(rel)) {
		return false
	}

	if eventType == models.EventDeleted {
		w.mu.Lock()
		delete(w.lastEvent, rel)
		w.mu.Unlock()
		return true
	}

	if w.queues.LanguageForFile(rel) == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	last, seen := w.lastEvent[rel]
	w.lastEvent[rel] = at
	if seen && at.Sub(last) < w.cfg.Debounce {
		return false
	}
	return true
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.cfg.CodebaseRoot, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) ignored(rel string) bool {
	for _, pattern := range w.cfg.IgnoredPatterns {
		for _, candidate := range []string{pattern, "**/" + pattern, "**/" + pattern + "/**", pattern + "/**"} {
			if ok, _ := doublestar.Match(candidate, rel); ok {
				return true
			}
		}
	}
	return false
}

// tempFile matches editor and OS scratch files that never carry code.
func tempFile(name string) bool {
	switch {
	case strings.HasSuffix(name, "~"),
		strings.HasSuffix(name, ".swp"),
		strings.HasSuffix(name, ".swx"),
		strings.HasSuffix(name, ".tmp"),
		name == ".DS_Store",
		name == "4913": // vim write test file
		return true
	}
	return false
}

func classify(op fsnotify.Op) (models.EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return models.EventCreated, true
	case op.Has(fsnotify.Write):
		return models.EventModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return models.EventDeleted, true
	}
	return "", false
}
