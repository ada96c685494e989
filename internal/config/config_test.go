package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Version != "dev" {
		t.Errorf("Version = %q, want dev", cfg.Version)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if len(cfg.Exclude) == 0 {
		t.Error("Exclude should carry the default patterns")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1.2.3"
workers: 4
managed_paths:
  - node_modules
  - vendor
exclude:
  - "*.tmp"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", cfg.Version)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if len(cfg.ManagedPaths) != 2 {
		t.Errorf("ManagedPaths = %v, want 2 entries", cfg.ManagedPaths)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "*.tmp" {
		t.Errorf("Exclude = %v, want [*.tmp]", cfg.Exclude)
	}
}

func TestLoadNonexistentFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load should tolerate a missing file, got: %v", err)
	}
	if cfg.Version != "dev" {
		t.Errorf("Version = %q, want dev (defaults)", cfg.Version)
	}
}

func TestLoadRejectsEmptyVersion(t *testing.T) {
	path := writeConfig(t, `version: ""`)
	if _, err := Load(path); err == nil {
		t.Error("Load should reject an empty version")
	}
}

func TestLoadRejectsNonPositiveWorkers(t *testing.T) {
	path := writeConfig(t, "workers: 0")
	if _, err := Load(path); err == nil {
		t.Error("Load should reject workers <= 0")
	}
}

func TestLoadRejectsNegativeMaxAge(t *testing.T) {
	path := writeConfig(t, "max_age_ms: -1")
	if _, err := Load(path); err == nil {
		t.Error("Load should reject a negative max_age_ms")
	}
}

func TestLoadResolvesCacheLocationToAbsolute(t *testing.T) {
	path := writeConfig(t, "cache_location: relative/path")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !filepath.IsAbs(cfg.CacheLocation) {
		t.Errorf("CacheLocation = %q, want an absolute path", cfg.CacheLocation)
	}
}
