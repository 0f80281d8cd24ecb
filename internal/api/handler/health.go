package handler

import (
	"context"
	"net/http"

	"github.com/bmcp/codegraph/pkg/apierr"
)

// Pinger verifies connectivity to a backing dependency.
type Pinger interface {
	Verify(ctx context.Context) error
}

type HealthHandler struct {
	graph Pinger
}

func NewHealthHandler(graph Pinger) *HealthHandler {
	return &HealthHandler{graph: graph}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.graph != nil {
		if err := h.graph.Verify(r.Context()); err != nil {
			writeAPIError(w, nil, apierr.GraphNotReady())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
