package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, ok, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing file")
	}
	if cfg.Registry != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
targetKind: docker
registry: ghcr.io/acme
tagPattern: '[0-9]+(\.[0-9]+)+$'
versionRange: "3.18:"
dryRun: true
docker:
  insecure: true
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, ok, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if cfg.TargetKind != "docker" || cfg.Registry != "ghcr.io/acme" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.VersionRange != "3.18:" || !cfg.DryRun || !cfg.Docker.Insecure {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("registry: [broken"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
