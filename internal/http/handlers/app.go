// Package handlers implements the JSON API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"hookforge/internal/config"
	"hookforge/internal/events"
	"hookforge/internal/pipeline"
	"hookforge/internal/registry"
	"hookforge/internal/retention"
	"hookforge/internal/storage"
	"hookforge/internal/worker"
)

const AppVersion = "0.3.0"

type App struct {
	Registry    *registry.Registry
	Store       *storage.FileStore
	ConfigStore *config.Store
	Pool        *worker.Pool
	Rerun       *pipeline.Rerun
	Sweeper     *retention.Sweeper
	Broadcaster *events.Broadcaster
	Media       pipeline.MediaTool
	Logger      zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
