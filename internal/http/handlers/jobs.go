package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hookforge/internal/domain"
	"hookforge/internal/pipeline"
	"hookforge/internal/storage"
)

type jobOut struct {
	ID              string                         `json:"id"`
	ProjectName     string                         `json:"project_name"`
	InputFilename   string                         `json:"input_filename"`
	Status          domain.JobStatus               `json:"status"`
	ErrorMessage    string                         `json:"error_message,omitempty"`
	CancelRequested bool                           `json:"cancel_requested"`
	ASRClipSeconds  int                            `json:"asr_clip_seconds"`
	HookClipSeconds int                            `json:"hook_clip_seconds"`
	Artifacts       map[domain.ArtifactKind]string `json:"artifacts"`
	Meta            map[string]any                 `json:"meta"`
	CreatedAt       int64                          `json:"created_at"`
	UpdatedAt       int64                          `json:"updated_at"`
}

// toJobOut shapes a job for API responses. The config snapshot stays
// internal: it carries provider credentials.
func toJobOut(job *domain.Job) jobOut {
	meta := make(map[string]any, len(job.Meta))
	for k, v := range job.Meta {
		if k == domain.MetaConfigSnapshot {
			continue
		}
		meta[k] = v
	}
	artifacts := job.Artifacts
	if artifacts == nil {
		artifacts = map[domain.ArtifactKind]string{}
	}
	return jobOut{
		ID:              job.ID,
		ProjectName:     job.ProjectName,
		InputFilename:   job.InputFilename,
		Status:          job.Status,
		ErrorMessage:    job.ErrorMessage,
		CancelRequested: job.CancelRequested,
		ASRClipSeconds:  job.ASRClipSeconds,
		HookClipSeconds: job.HookClipSeconds,
		Artifacts:       artifacts,
		Meta:            meta,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

type jobCreateResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.ConfigStore.Load()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load config")
		return
	}
	maxBytes := int64(cfg.Pipeline.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "uploaded file exceeds max size")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("video_file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "video_file is required")
		return
	}
	defer file.Close()
	rawName := filepath.Base(header.Filename)
	if rawName == "" || rawName == "." {
		a.error(w, http.StatusBadRequest, "bad_request", "video_file filename is required")
		return
	}

	asrSeconds, ok := formInt(r, "asr_clip_seconds", cfg.Pipeline.DefaultASRClipSeconds, 1, 120)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "asr_clip_seconds must be between 1 and 120")
		return
	}
	hookSeconds, ok := formInt(r, "hook_clip_seconds", cfg.Pipeline.DefaultHookClipSeconds, 1, 20)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "hook_clip_seconds must be between 1 and 20")
		return
	}

	jobID := uuid.NewString()
	sourceKey, err := a.Store.WriteFrom(r.Context(), storage.JobKey(jobID, "source_"+rawName), file)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}

	project := strings.TrimSpace(r.FormValue("project_name"))
	if project == "" {
		project = strings.TrimSuffix(rawName, filepath.Ext(rawName))
	}
	if project == "" {
		project = "Untitled"
	}

	job := &domain.Job{
		ID:              jobID,
		ProjectName:     project,
		InputFilename:   rawName,
		SourcePath:      sourceKey,
		ASRClipSeconds:  asrSeconds,
		HookClipSeconds: hookSeconds,
		Meta:            map[string]any{domain.MetaConfigSnapshot: cfg},
	}
	if err := a.Registry.CreateJob(r.Context(), job); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	a.Pool.Enqueue(jobID)

	a.json(w, http.StatusAccepted, jobCreateResponse{JobID: jobID, Status: domain.StatusQueued})
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Registry.ListJobs(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	out := make([]jobOut, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobOut(job))
	}
	a.json(w, http.StatusOK, out)
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Registry.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, domain.ErrJobNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch job")
		return
	}
	a.json(w, http.StatusOK, toJobOut(job))
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	force := boolQuery(r, "force")

	err := a.Sweeper.Delete(r.Context(), jobID, force)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	case errors.Is(err, domain.ErrJobActive):
		a.error(w, http.StatusConflict, "conflict", "job is still active, set force=true to delete it")
		return
	case err != nil:
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted": true, "job_id": jobID, "force": force})
}

type jobRerunRequest struct {
	StartStage string `json:"start_stage"`
}

func (a *App) RerunJob(w http.ResponseWriter, r *http.Request) {
	parentID := chi.URLParam(r, "job_id")
	var req jobRerunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	cfg, err := a.ConfigStore.Load()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load config")
		return
	}

	startStage := strings.ToLower(strings.TrimSpace(req.StartStage))
	child, err := a.Rerun.Create(r.Context(), parentID, startStage, cfg)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	case errors.Is(err, pipeline.ErrMissingPrerequisite):
		a.error(w, http.StatusConflict, "conflict", err.Error())
		return
	case err != nil:
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.Pool.Enqueue(child.ID)

	a.json(w, http.StatusAccepted, jobCreateResponse{JobID: child.ID, Status: child.Status})
}

func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := a.Registry.RequestCancel(r.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to request cancel")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"job_id": jobID, "cancel_requested": true})
}

func (a *App) CleanupJobs(w http.ResponseWriter, r *http.Request) {
	keepLatest := 20
	if raw := r.URL.Query().Get("keep_latest"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			a.error(w, http.StatusBadRequest, "bad_request", "keep_latest must be between 1 and 200")
			return
		}
		keepLatest = parsed
	}

	removed, err := a.Sweeper.Cleanup(r.Context(), keepLatest)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "cleanup failed")
		return
	}
	if removed == nil {
		removed = []string{}
	}
	a.json(w, http.StatusOK, map[string]any{"removed": removed, "keep_latest": keepLatest})
}

func formInt(r *http.Request, field string, def, min, max int) (int, bool) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return def, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < min || parsed > max {
		return 0, false
	}
	return parsed, true
}

func boolQuery(r *http.Request, name string) bool {
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "1" || v == "true"
}
