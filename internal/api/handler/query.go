package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bmcp/codegraph/pkg/apierr"
)

// destructiveFragments screen the Cypher proxy. The read-mode session is
// the real guard; this keeps obvious mutations from reaching the driver
// with a clear error instead of a transaction failure.
var destructiveFragments = []string{
	"delete",
	"detach",
	"remove",
	"drop",
	"create ",
	"merge ",
	"set ",
	"call dbms",
	"apoc.",
	"load csv",
}

// QueryRunner executes read-only Cypher.
type QueryRunner interface {
	ReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

type QueryHandler struct {
	logger *slog.Logger
	graph  QueryRunner
}

func NewQueryHandler(logger *slog.Logger, g QueryRunner) *QueryHandler {
	return &QueryHandler{logger: logger, graph: g}
}

type queryRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

// Run executes a caller-supplied read query against the graph.
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeAPIError(w, h.logger, apierr.QueryRequired())
		return
	}
	if IsDestructive(req.Query) {
		writeAPIError(w, h.logger, apierr.DestructiveQuery())
		return
	}

	rows, err := h.graph.ReadQuery(r.Context(), req.Query, req.Params)
	if err != nil {
		writeAPIError(w, h.logger, apierr.GraphQueryFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": rows, "count": len(rows)})
}

// IsDestructive reports whether the query contains a screened fragment.
func IsDestructive(query string) bool {
	q := strings.ToLower(query)
	for _, fragment := range destructiveFragments {
		if strings.Contains(q, fragment) {
			return true
		}
	}
	return false
}
