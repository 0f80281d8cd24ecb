package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bmcp/codegraph/pkg/apierr"
)

// GraphAdmin is the destructive slice of the graph client, reachable only
// through the key-guarded admin routes.
type GraphAdmin interface {
	Wipe(ctx context.Context) error
	PendingCount(ctx context.Context) (int, error)
	MaterializeExternalTargets(ctx context.Context) (int, error)
}

type AdminHandler struct {
	logger *slog.Logger
	graph  GraphAdmin
}

func NewAdminHandler(logger *slog.Logger, g GraphAdmin) *AdminHandler {
	return &AdminHandler{logger: logger, graph: g}
}

// ClearGraph deletes every node and relationship. The relational mirror is
// untouched; a follow-up scan with wipe_existing rebuilds both sides.
func (h *AdminHandler) ClearGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.graph.Wipe(r.Context()); err != nil {
		writeAPIError(w, h.logger, apierr.GraphClearFailed(err))
		return
	}
	h.logger.Warn("graph cleared by admin request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// MaterializeExternal creates External placeholder nodes for pending
// targets nothing defines; the periodic resolution pass then attaches the
// waiting edges.
func (h *AdminHandler) MaterializeExternal(w http.ResponseWriter, r *http.Request) {
	created, err := h.graph.MaterializeExternalTargets(r.Context())
	if err != nil {
		writeAPIError(w, h.logger, apierr.GraphQueryFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"external_nodes_created": created})
}

// PendingRelationships reports the unresolved relationship backlog.
func (h *AdminHandler) PendingRelationships(w http.ResponseWriter, r *http.Request) {
	count, err := h.graph.PendingCount(r.Context())
	if err != nil {
		writeAPIError(w, h.logger, apierr.GraphQueryFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending_relationships": count})
}
