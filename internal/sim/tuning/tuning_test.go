package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRepoTuning(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Defaults()
	def.Normalize()
	if got != def {
		t.Fatalf("configs/tuning.yaml drifted from Defaults:\n got %+v\nwant %+v", got, def)
	}
	if got.ChunkSizeUnits() != 256 {
		t.Fatalf("chunk size units %v", got.ChunkSizeUnits())
	}
}

func TestLoadPartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "tick_rate_hz: 5\nterrain:\n  mode: radial\nobserver:\n  default_chunks_per_tick: 500\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TickRateHz != 5 || got.Terrain.Mode != "radial" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.ChunkSize != 16 || got.Lights.Steps != 8 || got.Terrain.Octaves != 4 {
		t.Fatalf("defaults lost: %+v", got)
	}
	if got.Observer.DefaultChunksPerTick != got.Observer.MaxChunksPerTick {
		t.Fatalf("per-tick default not clamped: %+v", got.Observer)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("lights:\n  reference_direction: UP\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "tuning.yaml") {
		t.Fatalf("expected tuning.yaml error, got %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TickRateHz != 20 {
		t.Fatalf("defaults: %+v", got)
	}
}
