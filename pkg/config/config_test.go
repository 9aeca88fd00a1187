package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/logflow/pmcore/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) = %v, want nil", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Discovery.NoiseThreshold = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for noise threshold > 1")
	}
	if !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("GetCode() = %s, want %s", errors.GetCode(err), errors.CodeInvalidParameter)
	}
}

func TestLoadFileMerges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pmcore.yaml")
	content := `
log:
  activity_key: "Activity"
discovery:
  noise_threshold: 0.2
alignment:
  variant: dijkstra
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager()
	if err := m.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() = %v", err)
	}

	cfg := m.Get()
	if cfg.Log.ActivityKey != "Activity" {
		t.Errorf("ActivityKey = %q, want %q", cfg.Log.ActivityKey, "Activity")
	}
	if cfg.Log.TimestampKey != "time:timestamp" {
		t.Errorf("TimestampKey = %q, want default", cfg.Log.TimestampKey)
	}
	if cfg.Discovery.NoiseThreshold != 0.2 {
		t.Errorf("NoiseThreshold = %v, want 0.2", cfg.Discovery.NoiseThreshold)
	}
	if cfg.Alignment.Variant != "dijkstra" {
		t.Errorf("Variant = %q, want dijkstra", cfg.Alignment.Variant)
	}
	if len(m.GetPaths()) != 1 {
		t.Errorf("GetPaths() = %v, want 1 path", m.GetPaths())
	}
}

func TestLoadFileRejectsUnknownVariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pmcore.yaml")
	if err := os.WriteFile(path, []byte("alignment:\n  variant: greedy\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewManager().LoadFile(path); err == nil {
		t.Error("Expected validation error for unknown variant")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PMCORE_ACTIVITY_KEY", "act")
	t.Setenv("PMCORE_WORKERS", "4")

	m := NewManager()
	if err := m.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	cfg := m.Get()
	if cfg.Log.ActivityKey != "act" {
		t.Errorf("ActivityKey = %q, want act", cfg.Log.ActivityKey)
	}
	if cfg.Replay.Workers != 4 || cfg.Alignment.Workers != 4 {
		t.Errorf("Workers = %d/%d, want 4/4", cfg.Replay.Workers, cfg.Alignment.Workers)
	}
}
