package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hookforge/internal/config"
)

func (a *App) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.ConfigStore.Load()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load config")
		return
	}
	a.json(w, http.StatusOK, cfg)
}

func (a *App) PutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.Default()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.ConfigStore.Save(cfg); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to save config")
		return
	}
	a.json(w, http.StatusOK, cfg)
}

func (a *App) ListConfigPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := a.ConfigStore.ListPresets()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list presets")
		return
	}
	if presets == nil {
		presets = []config.PresetSummary{}
	}
	a.json(w, http.StatusOK, presets)
}

func (a *App) GetConfigPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := a.ConfigStore.GetPreset(chi.URLParam(r, "name"))
	if errors.Is(err, config.ErrPresetNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "preset not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, preset)
}

func (a *App) PutConfigPreset(w http.ResponseWriter, r *http.Request) {
	cfg := config.Default()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	preset, err := a.ConfigStore.SavePreset(chi.URLParam(r, "name"), cfg)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, preset)
}

func (a *App) DeleteConfigPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := a.ConfigStore.DeletePreset(name)
	if errors.Is(err, config.ErrPresetNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "preset not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted": true, "name": name})
}
