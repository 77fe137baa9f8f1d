package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/autolink/internal/config"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, cfg config.ServerConfig, opts ...RouteOption) *chi.Mux {
	var ro routeOptions
	for _, opt := range opts {
		opt(&ro)
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", OwnerHeader, "X-Request-Id"},
		MaxAge:         300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}

	limitGenerate := generateLimiter(cfg.GenerateRatePerMinute, ro)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireOwner)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Get("/{id}", h.GetRule)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeleteRule)
			r.Post("/{id}/activate", h.ActivateRule)
			r.Post("/{id}/deactivate", h.DeactivateRule)
		})

		r.Route("/content/{id}", func(r chi.Router) {
			r.Post("/scan", h.ScanContent)
			r.With(limitGenerate).Post("/generate", h.GenerateSuggestions)
			r.Post("/bulk-accept", h.BulkAccept)
			r.Get("/insertions", h.ListInsertions)
			r.Get("/revisions", h.ListRevisions)
			r.Get("/revisions/raw", h.GetRevision)
		})

		r.Route("/suggestions", func(r chi.Router) {
			r.Get("/", h.ListSuggestions)
			r.Get("/{id}", h.GetSuggestion)
			r.Post("/{id}/accept", h.AcceptSuggestion)
			r.Post("/{id}/reject", h.RejectSuggestion)
			r.Post("/{id}/reopen", h.ReopenSuggestion)
		})
	})

	return r
}
