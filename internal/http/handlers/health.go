package handlers

import (
	"net/http"

	"hookforge/internal/domain"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	var queued int
	unfinished, err := a.Registry.ListUnfinishedJobs(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("health: list unfinished jobs")
	}
	for _, job := range unfinished {
		if job.Status == domain.StatusQueued {
			queued++
		}
	}

	a.json(w, http.StatusOK, map[string]any{
		"version":           AppVersion,
		"ffmpeg_available":  a.Media.Available(r.Context()),
		"ffprobe_available": a.Media.ProbeAvailable(r.Context()),
		"queued_jobs":       queued,
	})
}
