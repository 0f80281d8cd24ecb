package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bmcp/codegraph/internal/queue"
	"github.com/bmcp/codegraph/pkg/apierr"
	"github.com/bmcp/codegraph/pkg/models"
)

// Publisher enqueues a message onto a stream. Satisfied by queue.Publisher.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg any) error
}

type ScanHandler struct {
	logger *slog.Logger
	pub    Publisher
}

func NewScanHandler(logger *slog.Logger, pub Publisher) *ScanHandler {
	return &ScanHandler{logger: logger, pub: pub}
}

type scanRequest struct {
	RootPath     string `json:"root_path"`
	WipeExisting bool   `json:"wipe_existing"`
}

// Trigger enqueues a full scan. The scanner service picks the trigger up
// from the scan stream; the response only acknowledges the enqueue.
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, h.logger, apierr.InvalidRequestBody())
			return
		}
	}

	trigger := models.ScanTrigger{
		Action:       "full_scan",
		RootPath:     req.RootPath,
		WipeExisting: req.WipeExisting,
	}
	if err := h.pub.Publish(r.Context(), queue.ScanStream, trigger); err != nil {
		writeAPIError(w, h.logger, apierr.ScanTriggerFailed(err))
		return
	}

	h.logger.Info("scan queued",
		slog.String("root", req.RootPath),
		slog.Bool("wipe", req.WipeExisting))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":        "queued",
		"wipe_existing": req.WipeExisting,
	})
}
