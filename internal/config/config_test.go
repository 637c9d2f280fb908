package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  addr: ":9090"
  asset_dir: "/srv/webapp"

intake:
  max_bytes: 1048576
  allowed_mime_types:
    - image/jpeg
  min_dimension: 100

transcode:
  max_width: 640
  max_height: 640
  quality: 0.7

emit:
  chunk_size: 1024
`
	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Intake.MaxBytes != 1048576 || cfg.Intake.MinDimension != 100 {
		t.Fatalf("unexpected intake config %+v", cfg.Intake)
	}
	if len(cfg.Intake.AllowedMIMETypes) != 1 || cfg.Intake.AllowedMIMETypes[0] != "image/jpeg" {
		t.Fatalf("unexpected allow list %v", cfg.Intake.AllowedMIMETypes)
	}
	if cfg.Transcode.MaxWidth != 640 || cfg.Transcode.Quality != 0.7 {
		t.Fatalf("unexpected transcode config %+v", cfg.Transcode)
	}
	if cfg.Emit.ChunkSize != 1024 {
		t.Fatalf("unexpected chunk size %d", cfg.Emit.ChunkSize)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cfg.Intake.MaxBytes != 5<<20 {
		t.Fatalf("unexpected default max bytes %d", cfg.Intake.MaxBytes)
	}
	if cfg.Transcode.MaxWidth != 1280 || cfg.Transcode.MaxHeight != 1280 {
		t.Fatalf("unexpected default caps %+v", cfg.Transcode)
	}
	if cfg.Transcode.Quality != 0.85 {
		t.Fatalf("unexpected default quality %v", cfg.Transcode.Quality)
	}
	if cfg.Emit.ChunkSize != 32768 {
		t.Fatalf("unexpected default chunk size %d", cfg.Emit.ChunkSize)
	}
	if cfg.Intake.MinDimension != 200 {
		t.Fatalf("unexpected default min dimension %d", cfg.Intake.MinDimension)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("EMIT_CHUNK_SIZE", "4096")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Fatalf("expected env override, got %q", cfg.Redis.Addr)
	}
	if cfg.Emit.ChunkSize != 4096 {
		t.Fatalf("expected env override, got %d", cfg.Emit.ChunkSize)
	}
}

func TestValidateRejectsOutOfRangeQuality(t *testing.T) {
	cfg := Default()
	cfg.Transcode.Quality = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for quality > 1")
	}

	cfg = Default()
	cfg.Transcode.Quality = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero quality")
	}
}

func TestValidateRejectsEmptyAllowList(t *testing.T) {
	cfg := Default()
	cfg.Intake.AllowedMIMETypes = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty allow list")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
