package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tilelight.ai/internal/sim/lightsim"
	"tilelight.ai/internal/sim/terrain"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz           int     `yaml:"tick_rate_hz"`
	TileSizeUnits        float32 `yaml:"tile_size_units"`
	ChunkSize            int     `yaml:"chunk_size"`
	RenderDistanceChunks int     `yaml:"render_distance_chunks"`
	InitRadiusTiles      int     `yaml:"init_radius_tiles"`
	WorkerCount          int     `yaml:"worker_count"`
	StaleJobTicks        uint64  `yaml:"stale_job_ticks"`

	Terrain  terrain.Config  `yaml:"terrain"`
	Lights   lightsim.Config `yaml:"lights"`
	Observer Observer        `yaml:"observer"`
}

type Observer struct {
	SubscribeRateHz      float64 `yaml:"subscribe_rate_hz"`
	SubscribeBurst       int     `yaml:"subscribe_burst"`
	MaxChunkRadius       int     `yaml:"max_chunk_radius"`
	DefaultChunksPerTick int     `yaml:"default_chunks_per_tick"`
	MaxChunksPerTick     int     `yaml:"max_chunks_per_tick"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      "1.0",
		TickRateHz:           20,
		TileSizeUnits:        16,
		ChunkSize:            16,
		RenderDistanceChunks: 3,
		InitRadiusTiles:      100,
		Terrain:              terrain.DefaultConfig(),
		Lights:               lightsim.DefaultConfig(),
		Observer: Observer{
			SubscribeRateHz:      2,
			SubscribeBurst:       4,
			MaxChunkRadius:       8,
			DefaultChunksPerTick: 16,
			MaxChunksPerTick:     64,
		},
	}
}

// Load reads path over Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	def := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = def.ProtocolVersion
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = def.TickRateHz
	}
	if t.TickRateHz > 1000 {
		t.TickRateHz = 1000
	}
	if t.TileSizeUnits <= 0 {
		t.TileSizeUnits = def.TileSizeUnits
	}
	if t.ChunkSize <= 0 {
		t.ChunkSize = def.ChunkSize
	}
	if t.RenderDistanceChunks < 0 {
		t.RenderDistanceChunks = 0
	}
	if t.InitRadiusTiles < 0 {
		t.InitRadiusTiles = 0
	}
	if t.WorkerCount < 0 {
		t.WorkerCount = 0
	}
	t.Terrain.Normalize()
	t.Lights.Normalize()

	o := &t.Observer
	if o.SubscribeRateHz <= 0 {
		o.SubscribeRateHz = def.Observer.SubscribeRateHz
	}
	if o.SubscribeBurst <= 0 {
		o.SubscribeBurst = def.Observer.SubscribeBurst
	}
	if o.MaxChunkRadius <= 0 {
		o.MaxChunkRadius = def.Observer.MaxChunkRadius
	}
	if o.MaxChunksPerTick <= 0 {
		o.MaxChunksPerTick = def.Observer.MaxChunksPerTick
	}
	if o.DefaultChunksPerTick <= 0 {
		o.DefaultChunksPerTick = def.Observer.DefaultChunksPerTick
	}
	if o.DefaultChunksPerTick > o.MaxChunksPerTick {
		o.DefaultChunksPerTick = o.MaxChunksPerTick
	}
}

func (t Tuning) Validate() error {
	if t.ChunkSize > 1024 {
		return fmt.Errorf("chunk_size: %d exceeds 1024", t.ChunkSize)
	}
	if err := t.Terrain.Validate(); err != nil {
		return err
	}
	if err := t.Lights.Validate(); err != nil {
		return err
	}
	return nil
}

// ChunkSizeUnits is the edge of one chunk in world units.
func (t Tuning) ChunkSizeUnits() float32 {
	return t.TileSizeUnits * float32(t.ChunkSize)
}
