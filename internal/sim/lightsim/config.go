package lightsim

import "fmt"

type Config struct {
	OverlayTiles       int     `yaml:"overlay_tiles"`
	Steps              int     `yaml:"steps"`
	MinEnergy          int32   `yaml:"min_energy"`
	ReferenceDirection string  `yaml:"reference_direction"`
	EmitterPermille    int     `yaml:"emitter_permille"`
	WallAbsorption     float32 `yaml:"wall_absorption"`
	GroundAbsorption   float32 `yaml:"ground_absorption"`
}

func DefaultConfig() Config {
	return Config{
		OverlayTiles:       32,
		Steps:              8,
		MinEnergy:          65536,
		ReferenceDirection: "N",
		EmitterPermille:    6,
		WallAbsorption:     0.9,
		GroundAbsorption:   0.05,
	}
}

func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.OverlayTiles <= 0 {
		c.OverlayTiles = def.OverlayTiles
	}
	if c.OverlayTiles > 256 {
		c.OverlayTiles = 256
	}
	if c.Steps < 0 {
		c.Steps = 0
	}
	if c.MinEnergy < 0 {
		c.MinEnergy = 0
	}
	if c.ReferenceDirection == "" {
		c.ReferenceDirection = def.ReferenceDirection
	}
	if c.EmitterPermille < 0 {
		c.EmitterPermille = 0
	}
	if c.EmitterPermille > 1000 {
		c.EmitterPermille = 1000
	}
	c.WallAbsorption = clampAbsorption(c.WallAbsorption)
	c.GroundAbsorption = clampAbsorption(c.GroundAbsorption)
}

func (c Config) Validate() error {
	if _, err := ParseDirection(c.ReferenceDirection); err != nil {
		return fmt.Errorf("lights.reference_direction: %w", err)
	}
	return nil
}
