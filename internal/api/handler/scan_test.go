package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/pkg/models"
)

type fakeScanPublisher struct {
	stream string
	msg    any
	err    error
}

func (f *fakeScanPublisher) Publish(ctx context.Context, stream string, msg any) error {
	if f.err != nil {
		return f.err
	}
	f.stream = stream
	f.msg = msg
	return nil
}

func TestScanTrigger(t *testing.T) {
	pub := &fakeScanPublisher{}
	h := NewScanHandler(discard(), pub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan",
		strings.NewReader(`{"root_path": "/codebase/app", "wipe_existing": true}`))
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if pub.stream != queue.ScanStream {
		t.Errorf("stream = %q, want %q", pub.stream, queue.ScanStream)
	}
	trigger := pub.msg.(models.ScanTrigger)
	if trigger.Action != "full_scan" || trigger.RootPath != "/codebase/app" || !trigger.WipeExisting {
		t.Errorf("trigger = %+v", trigger)
	}
}

func TestScanTriggerEmptyBody(t *testing.T) {
	pub := &fakeScanPublisher{}
	h := NewScanHandler(discard(), pub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", nil)
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	trigger := pub.msg.(models.ScanTrigger)
	if trigger.RootPath != "" || trigger.WipeExisting {
		t.Errorf("trigger = %+v, want defaults", trigger)
	}
}

func TestScanTriggerMalformedBody(t *testing.T) {
	h := NewScanHandler(discard(), &fakeScanPublisher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", strings.NewReader(`{bad`))
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScanTriggerPublishFailure(t *testing.T) {
	h := NewScanHandler(discard(), &fakeScanPublisher{err: errors.New("stream down")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan",
		strings.NewReader(`{"root_path": "/codebase"}`))
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
