package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LANDCHANGE_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.Threshold != 0.2 {
		t.Fatalf("expected default threshold 0.2, got %v", cfg.Analysis.Threshold)
	}
	if cfg.Analysis.NIRBand != "B5" || cfg.Analysis.RedBand != "B4" {
		t.Fatalf("unexpected default bands: %s/%s", cfg.Analysis.NIRBand, cfg.Analysis.RedBand)
	}
	if cfg.Export.Scale != 30 || cfg.Export.Description != "change_detection" {
		t.Fatalf("unexpected export defaults: %+v", cfg.Export)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "landchange.yaml")
	content := []byte(`
archive:
  baseURL: https://archive.example.com
  timeout: 5s
analysis:
  threshold: 0.3
  maxYear: 2023
display:
  changePalette: ["#00ff00"]
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LANDCHANGE_ARCHIVE_KEY_ID", "svc-account")
	t.Setenv("LANDCHANGE_MIN_YEAR", "1990")
	t.Setenv("LANDCHANGE_REQUIRE_ORDERED_YEARS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Archive.BaseURL != "https://archive.example.com" || cfg.Archive.Timeout != 5*time.Second {
		t.Fatalf("archive section not applied: %+v", cfg.Archive)
	}
	if cfg.Analysis.Threshold != 0.3 || cfg.Analysis.MaxYear != 2023 {
		t.Fatalf("analysis section not applied: %+v", cfg.Analysis)
	}
	if cfg.Archive.KeyID != "svc-account" || cfg.Analysis.MinYear != 1990 || !cfg.Analysis.RequireOrderedYears {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Display.ChangePalette[0] != "#00ff00" {
		t.Fatalf("unexpected palette: %v", cfg.Display.ChangePalette)
	}
	// Untouched defaults survive a partial file.
	if cfg.Archive.CompositePath != "/v1/composites" {
		t.Fatalf("expected default composite path, got %q", cfg.Archive.CompositePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsInvertedYearRange(t *testing.T) {
	cfg := Default()
	cfg.Analysis.MinYear = 2020
	cfg.Analysis.MaxYear = 2010
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateThresholdRange(t *testing.T) {
	cfg := Default()
	cfg.Analysis.Threshold = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero threshold should be accepted: %v", err)
	}
	for _, bad := range []float64{-2.5, 2.01, math.NaN(), math.Inf(1)} {
		cfg.Analysis.Threshold = bad
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected threshold %v to be rejected", bad)
		}
	}
}

func TestYearRangeDefaultsToCurrentYear(t *testing.T) {
	cfg := Default()
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	min, max := cfg.Analysis.YearRange(now)
	if min != 1984 || max != 2026 {
		t.Fatalf("unexpected range %d-%d", min, max)
	}
}

func TestArchiveModeOverride(t *testing.T) {
	t.Setenv("LANDCHANGE_CONFIG", "")
	t.Setenv("LANDCHANGE_ARCHIVE_MODE", "MEMORY")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Archive.Mode != ArchiveModeMemory {
		t.Fatalf("expected memory archive, got %q", cfg.Archive.Mode)
	}

	cfg.Archive.Mode = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown archive mode to be rejected")
	}
}
