package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Image.Height != 320 || cfg.Image.Width != 456 {
		t.Fatalf("expected default shape 320x456, got %dx%d", cfg.Image.Height, cfg.Image.Width)
	}
	if cfg.Image.MaxDistance != 5 {
		t.Fatalf("expected default hole-fill window 5, got %d", cfg.Image.MaxDistance)
	}
	if cfg.Render.DefaultColormap != "viridis" {
		t.Fatalf("expected viridis, got %q", cfg.Render.DefaultColormap)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	content := `
server:
  port: 9090
image:
  height: 100
  width: 200
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Image.Height != 100 || cfg.Image.Width != 200 {
		t.Fatalf("expected 100x200, got %dx%d", cfg.Image.Height, cfg.Image.Width)
	}
	// Unset sections fall back to defaults.
	if cfg.Cache.ImageSizeMB != 512 || cfg.Cache.ImageTTLMinutes != 60 {
		t.Fatalf("expected default cache settings, got %+v", cfg.Cache)
	}
	if cfg.Data.StorePath == "" {
		t.Fatalf("expected default store path")
	}
	// The auxiliary table paths backfill too, otherwise a partial file
	// silently drops brain lookups and normalization ranges.
	if cfg.Data.LookupPath == "" || cfg.Data.CoordinatesPath == "" || cfg.Data.PercentilesPath == "" {
		t.Fatalf("expected default auxiliary table paths, got %+v", cfg.Data)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}
