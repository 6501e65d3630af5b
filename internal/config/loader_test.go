package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Orchestrator.PollIntervalMS != 500 {
		t.Errorf("poll interval = %d, want 500", cfg.Orchestrator.PollIntervalMS)
	}
	if cfg.Orchestrator.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.Orchestrator.MaxRetries)
	}
	if cfg.Server.Port != 8320 {
		t.Errorf("port = %d, want 8320", cfg.Server.Port)
	}
	if cfg.Breaker.ConsecutiveFailures != 5 {
		t.Errorf("breaker threshold = %d, want 5", cfg.Breaker.ConsecutiveFailures)
	}
}

func TestLoadMissingFilesAreNotErrors(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.json"), filepath.Join(dir, "also-nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8320 {
		t.Errorf("port = %d, want default 8320", cfg.Server.Port)
	}
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()

	globalPath := filepath.Join(dir, "global.json")
	writeFile(t, globalPath, `{
		"orchestrator": {"max_retries": 5},
		"server": {"port": 9000}
	}`)

	projectPath := filepath.Join(dir, "project.json")
	writeFile(t, projectPath, `{
		"server": {"port": 9999}
	}`)

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Project overrides global.
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999 (project wins)", cfg.Server.Port)
	}
	// Global overrides defaults where the project is silent.
	if cfg.Orchestrator.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5 (global wins over default)", cfg.Orchestrator.MaxRetries)
	}
	// Untouched fields keep their defaults.
	if cfg.Orchestrator.PollIntervalMS != 500 {
		t.Errorf("poll interval = %d, want default 500", cfg.Orchestrator.PollIntervalMS)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	writeFile(t, path, `{"server": `)

	if _, err := Load(path, ""); err == nil {
		t.Error("Load() accepted malformed JSON")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 7777
	cfg.Storage.Path = "/tmp/gantry-test.db"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", loaded.Server.Port)
	}
	if loaded.Storage.Path != "/tmp/gantry-test.db" {
		t.Errorf("storage path = %q, want %q", loaded.Storage.Path, "/tmp/gantry-test.db")
	}
}
