package terrain

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"tilelight.ai/internal/sim/mathx"
)

// Passability of a tile. 0 blocks movement, 255 is open ground.
type Passability uint8

const (
	Impassable Passability = 0
	Free       Passability = 255
)

// Generator computes tile content from world tile coordinates only, so any
// number of generation jobs may share one instance.
type Generator struct {
	cfg      Config
	rock     opensimplex.Noise
	porosity opensimplex.Noise
}

func NewGenerator(cfg Config) *Generator {
	cfg.Normalize()
	return &Generator{
		cfg:      cfg,
		rock:     opensimplex.NewNormalized(cfg.Seed),
		porosity: opensimplex.NewNormalized(cfg.Seed + 1),
	}
}

func (g *Generator) Config() Config { return g.cfg }

func (g *Generator) Passability(x, y int) Passability {
	if g.cfg.Mode == ModeRadial {
		return g.radial(x, y)
	}
	if WithinSpawnClear(x, y, g.cfg.SpawnClearRadius) {
		return Free
	}
	if octaveNoise(g.rock, float64(x), float64(y), g.cfg.Octaves, g.cfg.Frequency, g.cfg.Persistence) > g.cfg.RockThreshold {
		return Impassable
	}
	return Free
}

func (g *Generator) radial(x, y int) Passability {
	dist := math.Hypot(float64(x), float64(y))
	if dist <= g.cfg.CenterThreshold {
		return Free
	}
	falloff := (dist - g.cfg.CenterThreshold) / g.cfg.FalloffSpan
	v := Passability(255 - math.Min(falloff*255, 255))
	if int(v) < g.cfg.ImpassableBelow {
		return Impassable
	}
	return v
}

// Porosity is a smooth [0,1) field used to vary how strongly open ground
// absorbs light.
func (g *Generator) Porosity(x, y int) float64 {
	return octaveNoise(g.porosity, float64(x), float64(y), 2, g.cfg.Frequency*2, 0.5)
}

func (g *Generator) Hash(x, y int) uint64 {
	return mathx.Hash2(g.cfg.Seed, x, y)
}

func WithinSpawnClear(x, y, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx := int64(x)
	dy := int64(y)
	return dx*dx+dy*dy <= r*r
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
