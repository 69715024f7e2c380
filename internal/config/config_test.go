package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	store, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg := store.Get()
	if cfg.HTTPPort != 5055 {
		t.Errorf("HTTPPort = %d, want 5055", cfg.HTTPPort)
	}
	if cfg.MinAudioSizeBytes != 4096 {
		t.Errorf("MinAudioSizeBytes = %d, want 4096", cfg.MinAudioSizeBytes)
	}
	if cfg.GlobalConcurrencyLimit != 0 {
		t.Errorf("GlobalConcurrencyLimit = %d, want 0", cfg.GlobalConcurrencyLimit)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttsdispatch.yaml")
	contents := `
http_port: 9090
global_concurrency_limit: 4
servers:
  - name: s1
    url: http://localhost:9000
    enabled: true
    capacity: 2
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg := store.Get()
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.GlobalConcurrencyLimit != 4 {
		t.Errorf("GlobalConcurrencyLimit = %d, want 4", cfg.GlobalConcurrencyLimit)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Name != "s1" {
		t.Fatalf("expected one server named s1, got %+v", cfg.Servers)
	}
}
