package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrPresetNotFound reports a lookup for a preset name with no record.
var ErrPresetNotFound = errors.New("config: preset not found")

// PresetSummary lists a stored preset without its payload.
type PresetSummary struct {
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
}

// Preset is a named, saved configuration.
type Preset struct {
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
	Config    Config `json:"config"`
}

type presetRecord struct {
	UpdatedAt string `json:"updated_at"`
	Config    Config `json:"config"`
}

type presetsFile struct {
	Presets map[string]presetRecord `json:"presets"`
}

// Store reads and writes the config file and its presets. Writes are
// serialized; the files live alongside the job database in the data dir.
type Store struct {
	configPath  string
	presetsPath string
	mu          sync.Mutex
	now         func() time.Time
}

func NewStore(configPath, presetsPath string) *Store {
	return &Store{configPath: configPath, presetsPath: presetsPath, now: time.Now}
}

// Load returns the persisted configuration, or the defaults when no config
// file exists yet.
func (s *Store) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (Config, error) {
	data, err := os.ReadFile(s.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Save persists cfg as the active configuration.
func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.configPath, cfg)
}

// ListPresets returns preset summaries, most recently updated first.
func (s *Store) ListPresets() ([]PresetSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.loadPresetsLocked()
	if err != nil {
		return nil, err
	}
	out := make([]PresetSummary, 0, len(presets))
	for name, rec := range presets {
		out = append(out, PresetSummary{Name: name, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// GetPreset returns the named preset or ErrPresetNotFound.
func (s *Store) GetPreset(name string) (Preset, error) {
	normalized, err := normalizePresetName(name)
	if err != nil {
		return Preset{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.loadPresetsLocked()
	if err != nil {
		return Preset{}, err
	}
	rec, ok := presets[normalized]
	if !ok {
		return Preset{}, ErrPresetNotFound
	}
	return Preset{Name: normalized, UpdatedAt: rec.UpdatedAt, Config: rec.Config}, nil
}

// SavePreset stores cfg under name, overwriting any previous preset of the
// same name.
func (s *Store) SavePreset(name string, cfg Config) (Preset, error) {
	normalized, err := normalizePresetName(name)
	if err != nil {
		return Preset{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.loadPresetsLocked()
	if err != nil {
		return Preset{}, err
	}
	updatedAt := s.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	presets[normalized] = presetRecord{UpdatedAt: updatedAt, Config: cfg}
	if err := writeJSON(s.presetsPath, presetsFile{Presets: presets}); err != nil {
		return Preset{}, err
	}
	return Preset{Name: normalized, UpdatedAt: updatedAt, Config: cfg}, nil
}

// DeletePreset removes the named preset; ErrPresetNotFound if absent.
func (s *Store) DeletePreset(name string) error {
	normalized, err := normalizePresetName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.loadPresetsLocked()
	if err != nil {
		return err
	}
	if _, ok := presets[normalized]; !ok {
		return ErrPresetNotFound
	}
	delete(presets, normalized)
	return writeJSON(s.presetsPath, presetsFile{Presets: presets})
}

func (s *Store) loadPresetsLocked() (map[string]presetRecord, error) {
	data, err := os.ReadFile(s.presetsPath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]presetRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read presets: %w", err)
	}
	var file presetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: decode presets: %w", err)
	}
	if file.Presets == nil {
		file.Presets = map[string]presetRecord{}
	}
	return file.Presets, nil
}

func normalizePresetName(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return "", errors.New("config: preset name is required")
	}
	if len(normalized) > 80 {
		return "", errors.New("config: preset name too long (max 80)")
	}
	return normalized, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: ensure directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}
