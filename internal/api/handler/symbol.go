package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bmcp/codegraph/internal/store/postgres"
	"github.com/bmcp/codegraph/pkg/apierr"
)

const defaultListLimit = 50

// SymbolStore is the mirror's read side.
type SymbolStore interface {
	SymbolsByFile(ctx context.Context, filePath string) ([]postgres.Symbol, error)
	SearchSymbols(ctx context.Context, name string, limit int) ([]postgres.Symbol, error)
	RecentRuns(ctx context.Context, limit int) ([]postgres.Run, error)
}

type SymbolHandler struct {
	logger *slog.Logger
	store  SymbolStore
}

func NewSymbolHandler(logger *slog.Logger, s SymbolStore) *SymbolHandler {
	return &SymbolHandler{logger: logger, store: s}
}

// List returns mirrored symbols filtered by file path or name substring.
func (h *SymbolHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		symbols []postgres.Symbol
		err     error
	)
	switch {
	case r.URL.Query().Get("file") != "":
		symbols, err = h.store.SymbolsByFile(r.Context(), r.URL.Query().Get("file"))
	case r.URL.Query().Get("name") != "":
		symbols, err = h.store.SearchSymbols(r.Context(), r.URL.Query().Get("name"), limitParam(r))
	default:
		symbols, err = h.store.SearchSymbols(r.Context(), "", limitParam(r))
	}
	if err != nil {
		writeAPIError(w, h.logger, apierr.SymbolListFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols, "count": len(symbols)})
}

// Runs returns the newest analysis run records.
func (h *SymbolHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.RecentRuns(r.Context(), limitParam(r))
	if err != nil {
		writeAPIError(w, h.logger, apierr.SymbolListFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultListLimit
}
