package queue

import (
	"context"
	"testing"
	"time"
)

func TestHandlerContextDrainGrace(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	hctx, done := handlerContext(parent, 50*time.Millisecond)
	defer done()

	cancel()

	// the in-flight handler keeps a live context during the grace period
	select {
	case <-hctx.Done():
		t.Fatal("handler context cancelled before the drain grace elapsed")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case <-hctx.Done():
	case <-time.After(time.Second):
		t.Fatal("handler context never cancelled after the drain grace")
	}
}

func TestHandlerContextWithoutDrainFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	hctx, done := handlerContext(parent, 0)
	defer done()

	cancel()
	select {
	case <-hctx.Done():
	case <-time.After(time.Second):
		t.Fatal("handler context should track the parent directly")
	}
}

func TestHandlerContextCleanupCancels(t *testing.T) {
	hctx, done := handlerContext(context.Background(), time.Minute)
	done()

	select {
	case <-hctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cleanup did not cancel the handler context")
	}
}

func TestAnalysisStreamLowercasesLanguage(t *testing.T) {
	if got := AnalysisStream("Python"); got != "bmcp:jobs:analysis:python" {
		t.Errorf("AnalysisStream = %q", got)
	}
}
