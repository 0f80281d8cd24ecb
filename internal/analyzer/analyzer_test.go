package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bmcp/codegraph/internal/identity"
	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/pkg/models"
)

type fakeAnalyzer struct {
	err    error
	result models.AnalyzerResult
}

func (f *fakeAnalyzer) Language() string { return "python" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, filePath string, source []byte) (models.AnalyzerResult, error) {
	if f.err != nil {
		return models.AnalyzerResult{}, f.err
	}
	return f.result, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]any
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: make(map[string][]any)}
}

func (f *fakePublisher) Publish(ctx context.Context, stream string, msg any) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[stream] = append(f.messages[stream], msg)
	return nil
}

func (f *fakePublisher) results(t *testing.T) []models.AnalyzerResult {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AnalyzerResult
	for _, msg := range f.messages[queue.ResultsStream] {
		out = append(out, msg.(models.AnalyzerResult))
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jobPayload(t *testing.T, job models.AnalysisJob) []byte {
	t.Helper()
	b, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandleJobPublishesResult(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "app.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fa := &fakeAnalyzer{result: models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{{GID: "python:abc", Name: "app.py"}},
	}}
	pub := newFakePublisher()
	w := NewWorker(fa, root, pub, discard())

	payload := jobPayload(t, models.AnalysisJob{FilePath: "app.py", EventType: models.EventModified, ID: "1"})
	if err := w.HandleJob(context.Background(), payload); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	results := pub.results(t)
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	r := results[0]
	if r.FilePath != "app.py" || r.Language != "python" || r.Analyzer != "python_analyzer" {
		t.Errorf("result metadata = %q/%q/%q", r.FilePath, r.Language, r.Analyzer)
	}
	if len(r.NodesUpserted) != 1 {
		t.Errorf("nodes = %d, want 1", len(r.NodesUpserted))
	}
}

func TestHandleJobDeleted(t *testing.T) {
	fa := &fakeAnalyzer{}
	pub := newFakePublisher()
	w := NewWorker(fa, t.TempDir(), pub, discard())

	payload := jobPayload(t, models.AnalysisJob{FilePath: "gone.py", EventType: models.EventDeleted, ID: "2"})
	if err := w.HandleJob(context.Background(), payload); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	results := pub.results(t)
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	_, wantGID, err := identity.Generate(identity.Request{
		FilePath: "gone.py", EntityType: identity.EntityFile, Name: "gone.py", LanguageHint: "python",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results[0].NodesDeleted) != 1 || results[0].NodesDeleted[0] != wantGID {
		t.Errorf("NodesDeleted = %v, want [%s]", results[0].NodesDeleted, wantGID)
	}
}

func TestHandleJobMissingFile(t *testing.T) {
	fa := &fakeAnalyzer{}
	pub := newFakePublisher()
	w := NewWorker(fa, t.TempDir(), pub, discard())

	payload := jobPayload(t, models.AnalysisJob{FilePath: "missing.py", EventType: models.EventCreated, ID: "3"})
	if err := w.HandleJob(context.Background(), payload); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}

	results := pub.results(t)
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	if !strings.Contains(results[0].Error, "file not found") {
		t.Errorf("Error = %q, want file not found", results[0].Error)
	}
}

func TestHandleJobAnalyzerFailure(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "bad.py"), []byte("def broken(:\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fa := &fakeAnalyzer{err: errors.New("syntax errors in bad.py")}
	pub := newFakePublisher()
	w := NewWorker(fa, root, pub, discard())

	payload := jobPayload(t, models.AnalysisJob{FilePath: "bad.py", EventType: models.EventModified, ID: "4"})
	if err := w.HandleJob(context.Background(), payload); err != nil {
		t.Fatalf("analyzer failure should not error: %v", err)
	}

	results := pub.results(t)
	if len(results) != 1 || results[0].Error == "" {
		t.Fatalf("expected one error result, got %+v", results)
	}
}

func TestHandleJobMalformedPayload(t *testing.T) {
	w := NewWorker(&fakeAnalyzer{}, t.TempDir(), newFakePublisher(), discard())
	if err := w.HandleJob(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestHandleJobPublishFailureRequeues(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "app.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pub := newFakePublisher()
	pub.err = errors.New("stream unavailable")
	w := NewWorker(&fakeAnalyzer{}, root, pub, discard())

	payload := jobPayload(t, models.AnalysisJob{FilePath: "app.py", EventType: models.EventCreated, ID: "5"})
	if err := w.HandleJob(context.Background(), payload); err == nil {
		t.Fatal("expected publish failure to propagate")
	}
}
