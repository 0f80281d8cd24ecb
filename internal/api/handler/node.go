package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bmcp/codegraph/internal/graph"
	"github.com/bmcp/codegraph/pkg/apierr"
)

// NodeReader is the read-side slice of the graph client node handlers need.
type NodeReader interface {
	NodeByGID(ctx context.Context, gid string) (graph.Node, error)
	NodeByCanonicalID(ctx context.Context, canonicalID string) (graph.Node, error)
	Callers(ctx context.Context, gid string) ([]graph.Node, error)
	Callees(ctx context.Context, gid string) ([]graph.Node, error)
}

type NodeHandler struct {
	logger *slog.Logger
	graph  NodeReader
}

func NewNodeHandler(logger *slog.Logger, g NodeReader) *NodeHandler {
	return &NodeHandler{logger: logger, graph: g}
}

// Get resolves a node by gid or, when the id contains the canonical
// separator, by canonical id.
func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		node graph.Node
		err  error
	)
	if strings.Contains(id, "::") {
		node, err = h.graph.NodeByCanonicalID(r.Context(), id)
	} else {
		node, err = h.graph.NodeByGID(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			writeAPIError(w, h.logger, apierr.NodeNotFound())
			return
		}
		writeAPIError(w, h.logger, apierr.GraphQueryFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// Callers lists nodes with call edges into the given node.
func (h *NodeHandler) Callers(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.graph.Callers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.GraphQueryFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

// Callees lists nodes the given node calls.
func (h *NodeHandler) Callees(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.graph.Callees(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.GraphQueryFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}
