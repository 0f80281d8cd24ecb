package handler

import (
	"net/http"

	"github.com/bmcp/codegraph/internal/config"
)

type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// Get returns the effective runtime configuration with secrets redacted.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"neo4j_uri":           h.cfg.Neo4j.URI,
		"valkey_addr":         h.cfg.Valkey.Addr,
		"database_host":       h.cfg.Database.Host,
		"codebase_root":       h.cfg.Watcher.CodebaseRoot,
		"debounce_ms":         h.cfg.Watcher.Debounce.Milliseconds(),
		"ignored_patterns":    h.cfg.Watcher.IgnoredPatterns,
		"analyzer_extensions": h.cfg.Queue.Extensions,
		"analyzer_languages":  h.cfg.Queue.Languages(),
		"scan_workers":        h.cfg.Scan.Workers,
		"resolution_interval": h.cfg.Ingest.ResolutionInterval.String(),
	})
}
