// Package api assembles the HTTP gateway: node lookups, the guarded Cypher
// proxy, scan triggers, and admin operations.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/bmcp/codegraph/internal/api/handler"
	apimw "github.com/bmcp/codegraph/internal/api/middleware"
	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/internal/graph"
	"github.com/bmcp/codegraph/internal/store/postgres"
)

// RouterDeps holds the gateway's backing services. Mirror may be nil when
// the relational side store is disabled.
type RouterDeps struct {
	Graph     *graph.Client
	Publisher apihandler.Publisher
	Mirror    *postgres.Store
}

func NewRouter(logger *slog.Logger, cfg *config.Config, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(chimw.Recoverer)

	health := apihandler.NewHealthHandler(deps.Graph)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		nodes := apihandler.NewNodeHandler(logger, deps.Graph)
		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Get("/", nodes.Get)
			r.Get("/callers", nodes.Callers)
			r.Get("/callees", nodes.Callees)
		})

		if deps.Mirror != nil {
			symbols := apihandler.NewSymbolHandler(logger, deps.Mirror)
			r.Get("/symbols", symbols.List)
			r.Get("/runs", symbols.Runs)
		}

		cfgInfo := apihandler.NewConfigHandler(cfg)
		r.Get("/config", cfgInfo.Get)

		scans := apihandler.NewScanHandler(logger, deps.Publisher)
		r.Post("/scan", scans.Trigger)

		// key-guarded routes
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAPIKey(cfg.APIKey))

			query := apihandler.NewQueryHandler(logger, deps.Graph)
			r.Post("/query", query.Run)

			admin := apihandler.NewAdminHandler(logger, deps.Graph)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/clear-graph", admin.ClearGraph)
				r.Post("/materialize-external", admin.MaterializeExternal)
				r.Get("/pending-relationships", admin.PendingRelationships)
			})
		})
	})

	return r
}
