package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hookforge/internal/domain"
	"hookforge/pkg/zip"
)

// GetArtifact serves one artifact file. Range requests are honored so video
// artifacts can be scrubbed in a player.
func (a *App) GetArtifact(w http.ResponseWriter, r *http.Request) {
	if !domain.ValidArtifactKind(chi.URLParam(r, "kind")) {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported artifact kind")
		return
	}
	kind := domain.ArtifactKind(chi.URLParam(r, "kind"))

	job, err := a.Registry.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, domain.ErrJobNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch job")
		return
	}

	key, ok := job.Artifacts[kind]
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "artifact not found")
		return
	}
	f, err := a.Store.Open(key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "artifact file does not exist")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to stat artifact")
		return
	}

	name := path.Base(key)
	w.Header().Set("Content-Type", artifactContentType(name))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// GetArtifactBundle serves every present artifact of a job as one zip
// archive, entries named by kind.
func (a *App) GetArtifactBundle(w http.ResponseWriter, r *http.Request) {
	job, err := a.Registry.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, domain.ErrJobNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch job")
		return
	}

	var entries []zip.Entry
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, kind := range domain.ArtifactKinds {
		key, ok := job.Artifacts[kind]
		if !ok {
			continue
		}
		f, err := a.Store.Open(key)
		if err != nil {
			continue
		}
		closers = append(closers, f)
		entries = append(entries, zip.Entry{Filename: string(kind) + path.Ext(key), Reader: f})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no artifacts")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(job.ID+"_artifacts.zip"))
	if err := zip.Archive(w, entries); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("stream artifact bundle")
	}
}

func artifactContentType(name string) string {
	switch path.Ext(name) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
