package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 10 || cfg.MaxInFlight != 3 {
		t.Errorf("batch defaults = %d/%d", cfg.BatchSize, cfg.MaxInFlight)
	}
	if cfg.ClusterEps != 0.25 || cfg.ClusterMinPts != 2 {
		t.Errorf("cluster defaults = %v/%d", cfg.ClusterEps, cfg.ClusterMinPts)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("timeout default = %v", cfg.Timeout)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 5\nmodel: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SKILLGRAPH_CONFIG", path)
	t.Setenv("SKILLGRAPH_BATCH_SIZE", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want env to win over file", cfg.BatchSize)
	}
	if cfg.Model != "from-file" {
		t.Errorf("Model = %q, want file to win over defaults", cfg.Model)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SKILLGRAPH_BATCH_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for batch_size 0")
	}
}
