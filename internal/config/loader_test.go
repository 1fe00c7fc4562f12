package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Executor.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Executor.Concurrency)
	}
	if cfg.Executor.ActionTimeout.Std() != 30*time.Second {
		t.Errorf("action timeout = %v", cfg.Executor.ActionTimeout.Std())
	}
	if !cfg.Recovery.Enabled || cfg.Recovery.HistoryCap != 256 {
		t.Errorf("recovery = %+v", cfg.Recovery)
	}
	if cfg.Recovery.Retry.Multiplier != 2.0 {
		t.Errorf("multiplier = %v", cfg.Recovery.Retry.Multiplier)
	}
	if !cfg.Breaker.Enabled || cfg.Breaker.MaxFailures != 5 {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
}

func TestLoadMissingFilesAreNotErrors(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Executor.Concurrency != 4 {
		t.Errorf("defaults not applied: %+v", cfg.Executor)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"executor": {"concurrency": 8, "action_timeout": "1m"},
		"recovery": {"disabled": ["resource-wait"]}
	}`)

	cfg, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Executor.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", cfg.Executor.Concurrency)
	}
	if cfg.Executor.ActionTimeout.Std() != time.Minute {
		t.Errorf("action timeout = %v", cfg.Executor.ActionTimeout.Std())
	}
	// Untouched sections keep their defaults.
	if cfg.Breaker.MaxFailures != 5 {
		t.Errorf("breaker defaults lost: %+v", cfg.Breaker)
	}
	if len(cfg.Recovery.Disabled) != 1 || cfg.Recovery.Disabled[0] != "resource-wait" {
		t.Errorf("disabled = %v", cfg.Recovery.Disabled)
	}
}

func TestLoadProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{"executor": {"concurrency": 2}}`)
	project := writeFile(t, dir, "project.json", `{"executor": {"concurrency": 16}}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Executor.Concurrency != 16 {
		t.Errorf("concurrency = %d, want project value 16", cfg.Executor.Concurrency)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{not json`)

	if _, err := Load("", path); err == nil {
		t.Fatal("malformed config accepted")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	dir := t.TempDir()

	t.Run("string form", func(t *testing.T) {
		path := writeFile(t, dir, "a.json", `{"breaker": {"open_timeout": "45s"}}`)
		cfg, err := Load("", path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Breaker.OpenTimeout.Std() != 45*time.Second {
			t.Errorf("open timeout = %v", cfg.Breaker.OpenTimeout.Std())
		}
	})

	t.Run("numeric nanoseconds", func(t *testing.T) {
		path := writeFile(t, dir, "b.json", `{"breaker": {"open_timeout": 5000000000}}`)
		cfg, err := Load("", path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Breaker.OpenTimeout.Std() != 5*time.Second {
			t.Errorf("open timeout = %v", cfg.Breaker.OpenTimeout.Std())
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		path := writeFile(t, dir, "c.json", `{"breaker": {"open_timeout": "soon"}}`)
		if _, err := Load("", path); err == nil {
			t.Fatal("invalid duration accepted")
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Executor.Concurrency = 12
	cfg.Recovery.HistoryDB = filepath.Join(dir, "history.db")

	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Executor.Concurrency != 12 {
		t.Errorf("concurrency = %d", loaded.Executor.Concurrency)
	}
	if loaded.Recovery.HistoryDB != cfg.Recovery.HistoryDB {
		t.Errorf("history db = %q", loaded.Recovery.HistoryDB)
	}
	if loaded.Executor.ActionTimeout.Std() != 30*time.Second {
		t.Errorf("action timeout did not round-trip: %v", loaded.Executor.ActionTimeout.Std())
	}
}
