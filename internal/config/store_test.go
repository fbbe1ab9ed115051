package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "config.json"), filepath.Join(dir, "config_presets.json"))
}

func TestLoadReturnsDefaultsWhenMissing(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if cfg.Pipeline.DefaultHookClipSeconds != want.Pipeline.DefaultHookClipSeconds {
		t.Fatalf("hook clip seconds = %d, want %d", cfg.Pipeline.DefaultHookClipSeconds, want.Pipeline.DefaultHookClipSeconds)
	}
	if cfg.ASR.ResourceID != want.ASR.ResourceID {
		t.Fatalf("asr resource id = %q", cfg.ASR.ResourceID)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	cfg := Default()
	cfg.Pipeline.MaxParallelJobs = 4
	cfg.LLM.APIKey = "k"
	if err := store.Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Pipeline.MaxParallelJobs != 4 || got.LLM.APIKey != "k" {
		t.Fatalf("round trip lost changes: %+v", got.Pipeline)
	}
}

func TestPresetLifecycle(t *testing.T) {
	store := newTestStore(t)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	cfg := Default()
	cfg.Pipeline.MaxParallelJobs = 2
	if _, err := store.SavePreset("fast", cfg); err != nil {
		t.Fatalf("save preset: %v", err)
	}
	if _, err := store.SavePreset("  slow  ", Default()); err != nil {
		t.Fatalf("save preset: %v", err)
	}

	list, err := store.ListPresets()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("presets = %d, want 2", len(list))
	}
	if list[0].Name != "slow" {
		t.Fatalf("newest first: got %q", list[0].Name)
	}

	got, err := store.GetPreset("fast")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Config.Pipeline.MaxParallelJobs != 2 {
		t.Fatalf("preset config lost: %+v", got.Config.Pipeline)
	}

	if err := store.DeletePreset("fast"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetPreset("fast"); !errors.Is(err, ErrPresetNotFound) {
		t.Fatalf("err = %v, want ErrPresetNotFound", err)
	}
	if err := store.DeletePreset("fast"); !errors.Is(err, ErrPresetNotFound) {
		t.Fatalf("second delete err = %v, want ErrPresetNotFound", err)
	}
}

func TestPresetNameValidation(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.SavePreset("   ", Default()); err == nil {
		t.Fatal("blank name accepted")
	}
	long := make([]byte, 81)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := store.SavePreset(string(long), Default()); err == nil {
		t.Fatal("overlong name accepted")
	}
}
