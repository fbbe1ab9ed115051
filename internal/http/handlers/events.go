package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hookforge/internal/domain"
)

// JobEvents streams a job's event log as SSE: the committed history first,
// then live events, closed by an end marker once the job is terminal. An
// after_id query parameter skips events the client already saw.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := a.Registry.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch job")
		return
	}
	a.Broadcaster.Handler(jobID).ServeHTTP(w, r)
}
