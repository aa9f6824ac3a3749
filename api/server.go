/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters, when configured
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /health               Liveness and storage check
  /metrics              Prometheus exposition, when configured
  /api/items/*          Catalogue and ledger (writers may mutate)
  /api/entries/*        Undo, convert, serial lookup
  /api/assets/*         Assets and tools, hand-over history (assets.go)
  /api/receipts/*       Delivery receipt lookup
  /api/search/*         PO search
  /api/dashboard        Summary
  /api/scenarios/*      Demo scenarios (administrators load/reset)
  /api/admin/*          Rebuild and scheduler status (administrators)

SECURITY:
  Every /api route passes through the Authenticator. Mutations are gated
  by role; reads are open to any authenticated caller.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authenticator and role gates
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/metrics"
)

// RouterConfig carries the optional pieces of the HTTP stack.
type RouterConfig struct {
	CORSOrigins []string
	Metrics     *metrics.Collector
	Log         *zap.Logger
	Auth        *Authenticator
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.Log == nil {
		cfg.Log = h.Log
	}
	if cfg.Auth == nil {
		cfg.Auth = &Authenticator{}
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(cfg.Log))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor", "X-Role"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Get("/{id}", h.GetItem)
			r.Get("/{id}/entries", h.History)
			r.Get("/{id}/entries/export", h.ExportHistory)
			r.Get("/{id}/serials", h.ItemSerials)
			r.Get("/{id}/audit", h.ItemAudit)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(stockWriters...))
				r.Post("/", h.CreateItem)
				r.Patch("/{id}", h.UpdateItem)
				r.Post("/{id}/entries", h.SubmitEntry)
			})
			r.With(RequireRole(administrators...)).Post("/{id}/restore", h.RestoreItem)
		})

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/{id}/serials", h.EntrySerials)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(stockWriters...))
				r.Post("/{id}/undo", h.UndoEntry)
				r.Post("/{id}/convert", h.ConvertEntry)
			})
		})

		// Asset routes
		if h.Assets != nil {
			r.Route("/assets", func(r chi.Router) {
				r.Get("/", h.ListAssets)
				r.Get("/{id}", h.GetAsset)
				r.Get("/{id}/history", h.AssetHistory)
				r.Group(func(r chi.Router) {
					r.Use(RequireRole(stockWriters...))
					r.Post("/", h.CreateAsset)
					r.Post("/{id}/assign", h.AssignAsset)
					r.Post("/{id}/return", h.ReturnAsset)
					r.Post("/changes/{id}/undo", h.UndoAssetChange)
				})
				r.With(RequireRole(RoleSuperAdmin)).Delete("/{id}", h.DeleteAsset)
			})
		}

		r.Get("/receipts/{dr}", h.DeliveryReceipt)
		r.Get("/search/po", h.SearchPO)
		r.Get("/dashboard", h.Dashboard)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(administrators...))
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(administrators...))
			r.Post("/rebuild", h.Rebuild)
			r.Get("/rebuild/status", h.RebuildStatus)
		})
	})

	return r
}
