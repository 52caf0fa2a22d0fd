package terrain

import "fmt"

const (
	ModeRadial = "radial"
	ModeNoise  = "noise"
)

type Config struct {
	Seed int64  `yaml:"seed"`
	Mode string `yaml:"mode"`

	// radial
	CenterThreshold float64 `yaml:"center_threshold"`
	FalloffSpan     float64 `yaml:"falloff_span"`
	ImpassableBelow int     `yaml:"impassable_below"`

	// noise
	Octaves          int     `yaml:"octaves"`
	Frequency        float64 `yaml:"frequency"`
	Persistence      float64 `yaml:"persistence"`
	RockThreshold    float64 `yaml:"rock_threshold"`
	SpawnClearRadius int     `yaml:"spawn_clear_radius"`
}

func DefaultConfig() Config {
	return Config{
		Seed:             1337,
		Mode:             ModeNoise,
		CenterThreshold:  10,
		FalloffSpan:      500,
		ImpassableBelow:  250,
		Octaves:          4,
		Frequency:        0.05,
		Persistence:      0.5,
		RockThreshold:    0.62,
		SpawnClearRadius: 12,
	}
}

// Normalize replaces unset or out-of-range values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.CenterThreshold < 0 {
		c.CenterThreshold = 0
	}
	if c.FalloffSpan <= 0 {
		c.FalloffSpan = def.FalloffSpan
	}
	if c.ImpassableBelow < 0 {
		c.ImpassableBelow = 0
	}
	if c.ImpassableBelow > 255 {
		c.ImpassableBelow = 255
	}
	if c.Octaves <= 0 {
		c.Octaves = def.Octaves
	}
	if c.Octaves > 8 {
		c.Octaves = 8
	}
	if c.Frequency <= 0 {
		c.Frequency = def.Frequency
	}
	if c.Persistence <= 0 || c.Persistence > 1 {
		c.Persistence = def.Persistence
	}
	if c.RockThreshold <= 0 {
		c.RockThreshold = def.RockThreshold
	}
	if c.SpawnClearRadius < 0 {
		c.SpawnClearRadius = 0
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeRadial, ModeNoise:
	default:
		return fmt.Errorf("terrain.mode: unknown mode %q", c.Mode)
	}
	if c.RockThreshold >= 1 {
		return fmt.Errorf("terrain.rock_threshold: must be below 1, got %v", c.RockThreshold)
	}
	return nil
}
