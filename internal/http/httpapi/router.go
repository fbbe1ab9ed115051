// Package httpapi wires the API routes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"hookforge/internal/http/handlers"
	"hookforge/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(corsOrigins),
		middleware.Logger(logger),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)

		r.Route("/config", func(r chi.Router) {
			r.Get("/", app.GetConfig)
			r.Put("/", app.PutConfig)
			r.Get("/presets", app.ListConfigPresets)
			r.Get("/presets/{name}", app.GetConfigPreset)
			r.Put("/presets/{name}", app.PutConfigPreset)
			r.Delete("/presets/{name}", app.DeleteConfigPreset)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Post("/cleanup", app.CleanupJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Delete("/", app.DeleteJob)
				r.Post("/rerun", app.RerunJob)
				r.Post("/cancel", app.CancelJob)
				r.Get("/events", app.JobEvents)
				r.Get("/artifacts/{kind}", app.GetArtifact)
				r.Get("/bundle", app.GetArtifactBundle)
			})
		})
	})

	return r
}
