package scan

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/pkg/models"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]any
}

func (f *fakePublisher) Publish(_ context.Context, stream string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string][]any)
	}
	f.messages[stream] = append(f.messages[stream], msg)
	return nil
}

type fakeWiper struct{ calls int }

func (f *fakeWiper) Wipe(context.Context) error {
	f.calls++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(pub Publisher, wipers ...Wiper) *Orchestrator {
	return New(
		config.ScanConfig{Workers: 4},
		config.WatcherConfig{IgnoredPatterns: []string{"node_modules", "venv", "__pycache__"}},
		config.QueueConfig{Extensions: map[string]string{".py": "python", ".sql": "sql"}},
		pub, wipers, discardLogger(),
	)
}

func writeFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanDispatchesSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"app.py",
		"db/schema.sql",
		"docs/readme.md",
		"venv/lib/site.py",
		"src/__pycache__/mod.pyc",
	)

	pub := &fakePublisher{}
	o := newTestOrchestrator(pub)
	if err := o.Scan(context.Background(), root, false); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var pyPaths []string
	for _, msg := range pub.messages["bmcp:jobs:analysis:python"] {
		job := msg.(models.AnalysisJob)
		if job.EventType != models.EventCreated {
			t.Errorf("event type = %s, want CREATED", job.EventType)
		}
		pyPaths = append(pyPaths, job.FilePath)
	}
	sort.Strings(pyPaths)
	if len(pyPaths) != 1 || pyPaths[0] != "app.py" {
		t.Errorf("python jobs = %v, want [app.py]", pyPaths)
	}

	sqlJobs := pub.messages["bmcp:jobs:analysis:sql"]
	if len(sqlJobs) != 1 || sqlJobs[0].(models.AnalysisJob).FilePath != "db/schema.sql" {
		t.Errorf("sql jobs = %v", sqlJobs)
	}
}

func TestScanWipesWhenRequested(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.py")

	wiper := &fakeWiper{}
	o := newTestOrchestrator(&fakePublisher{}, wiper)

	if err := o.Scan(context.Background(), root, false); err != nil {
		t.Fatal(err)
	}
	if wiper.calls != 0 {
		t.Errorf("wiper ran without wipe_existing")
	}

	if err := o.Scan(context.Background(), root, true); err != nil {
		t.Fatal(err)
	}
	if wiper.calls != 1 {
		t.Errorf("wiper calls = %d, want 1", wiper.calls)
	}
}

func TestHandleTrigger(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.py")

	pub := &fakePublisher{}
	o := newTestOrchestrator(pub)

	payload, _ := json.Marshal(models.ScanTrigger{Action: "full_scan", RootPath: root})
	if err := o.HandleTrigger(context.Background(), payload); err != nil {
		t.Fatalf("HandleTrigger: %v", err)
	}
	if len(pub.messages["bmcp:jobs:analysis:python"]) != 1 {
		t.Errorf("expected one python job, got %v", pub.messages)
	}
}

func TestHandleTriggerUnknownAction(t *testing.T) {
	pub := &fakePublisher{}
	o := newTestOrchestrator(pub)

	payload, _ := json.Marshal(models.ScanTrigger{Action: "partial"})
	if err := o.HandleTrigger(context.Background(), payload); err != nil {
		t.Fatalf("unknown action should be ignored, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Errorf("no jobs expected, got %v", pub.messages)
	}
}

func TestHandleTriggerMalformed(t *testing.T) {
	o := newTestOrchestrator(&fakePublisher{})
	if err := o.HandleTrigger(context.Background(), []byte("{")); err == nil {
		t.Error("expected error for malformed trigger")
	}
}
