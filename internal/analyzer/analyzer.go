// Package analyzer hosts the per-language analysis workers. A worker
// consumes one language's job stream, runs the registered Analyzer over each
// file, and publishes the AnalyzerResult to the shared results stream.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmcp/codegraph/internal/identity"
	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/pkg/models"
)

// Analyzer produces the graph delta for a single source file.
type Analyzer interface {
	Language() string
	Analyze(ctx context.Context, filePath string, source []byte) (models.AnalyzerResult, error)
}

// Publisher enqueues a message onto a stream. Satisfied by queue.Publisher.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg any) error
}

// Worker glues one Analyzer to its job stream.
type Worker struct {
	analyzer     Analyzer
	codebaseRoot string
	pub          Publisher
	logger       *slog.Logger
}

func NewWorker(a Analyzer, codebaseRoot string, pub Publisher, logger *slog.Logger) *Worker {
	return &Worker{analyzer: a, codebaseRoot: codebaseRoot, pub: pub, logger: logger}
}

// HandleJob is the job stream consumer handler. File-level failures (syntax
// errors, unreadable files) are reported inside the result; only
// infrastructure failures return an error and requeue the job.
func (w *Worker) HandleJob(ctx context.Context, payload []byte) error {
	var job models.AnalysisJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decode analysis job: %w", err)
	}

	result, err := w.process(ctx, job)
	if err != nil {
		return err
	}

	if err := w.pub.Publish(ctx, queue.ResultsStream, result); err != nil {
		return fmt.Errorf("publish analyzer result: %w", err)
	}
	w.logger.Info("analyzed file",
		slog.String("path", job.FilePath),
		slog.String("event", string(job.EventType)),
		slog.Int("nodes", len(result.NodesUpserted)),
		slog.Int("relationships", len(result.RelationshipsUpserted)),
		slog.String("error", result.Error))
	return nil
}

func (w *Worker) process(ctx context.Context, job models.AnalysisJob) (models.AnalyzerResult, error) {
	result := models.AnalyzerResult{
		FilePath: job.FilePath,
		Language: w.analyzer.Language(),
		Analyzer: w.analyzer.Language() + "_analyzer",
	}

	if job.EventType == models.EventDeleted {
		// the file is gone; deleting its File node cascades through
		// everything it contained
		_, gid, err := identity.Generate(identity.Request{
			FilePath:     job.FilePath,
			EntityType:   identity.EntityFile,
			Name:         filepath.Base(job.FilePath),
			LanguageHint: w.analyzer.Language(),
		})
		if err != nil {
			return result, fmt.Errorf("file identity for %s: %w", job.FilePath, err)
		}
		result.NodesDeleted = []string{gid}
		return result, nil
	}

	source, err := os.ReadFile(filepath.Join(w.codebaseRoot, filepath.FromSlash(job.FilePath)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// deleted between the event and now; report as an error
			// result rather than requeueing forever
			result.Error = fmt.Sprintf("file not found: %s", job.FilePath)
			return result, nil
		}
		return result, fmt.Errorf("read %s: %w", job.FilePath, err)
	}

	analyzed, err := w.analyzer.Analyze(ctx, job.FilePath, source)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	analyzed.FilePath = job.FilePath
	analyzed.Language = w.analyzer.Language()
	analyzed.Analyzer = result.Analyzer
	return analyzed, nil
}
