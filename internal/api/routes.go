package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/voxclone/voxclone/internal/config"
)

// NewRouter constructs the HTTP router with middleware and routes.
// Health and metrics stay reachable without the API key.
func NewRouter(cfg *config.Config, references ReferenceStore, synthesizer Synthesizer, metrics *Metrics, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)

	h := NewHandler(references, synthesizer, cfg, metrics, logger)

	r.Get("/v1/health", h.HandleHealth)
	r.Post("/v1/health", h.HandleHealth)
	r.Method("GET", "/metrics", MetricsHandler(metrics))

	r.Group(func(r chi.Router) {
		if cfg.Auth.APIKey != "" {
			r.Use(AuthMiddleware(cfg.Auth.APIKey))
		}

		r.Post("/v1/references/add", h.HandleAddReference)
		r.Get("/v1/references", h.HandleListReferences)
		r.Post("/v1/tts", h.HandleTTS)
	})

	return r
}
