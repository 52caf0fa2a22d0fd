package lightsim

import (
	"math"

	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/terrain"
)

// PbrCell carries the optical properties of a tile. Absorption 0 lets all
// energy through, 1 blocks it.
type PbrCell struct {
	Absorption float32 `json:"absorption"`
}

// Byte packs absorption for the observer layer stream.
func (c PbrCell) Byte() uint8 {
	return uint8(math.Round(float64(clampAbsorption(c.Absorption)) * 255))
}

// EmitterCell holds at most one undirected light.
type EmitterCell struct {
	Lit   bool            `json:"lit"`
	Light LightDefinition `json:"light"`
}

func (c EmitterCell) Byte() uint8 {
	if !c.Lit {
		return 0
	}
	return c.Light.RGBA().A
}

type PbrProducer struct {
	gen    *terrain.Generator
	wall   float32
	ground float32
}

func NewPbrProducer(gen *terrain.Generator, wallAbsorption, groundAbsorption float32) PbrProducer {
	return PbrProducer{gen: gen, wall: clampAbsorption(wallAbsorption), ground: clampAbsorption(groundAbsorption)}
}

func (PbrProducer) DefaultValue() PbrCell { return PbrCell{} }

func (p PbrProducer) GenerateChunk(c chunkmap.ChunkCoords, dim int) *chunkmap.Chunk[PbrCell] {
	ch := chunkmap.NewChunk(dim, PbrCell{})
	base := c.BottomLeftTile(dim)
	cells := ch.Grid.Cells()
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			cells[y*dim+x] = PbrCell{Absorption: p.At(base.X+x, base.Y+y)}
		}
	}
	return ch
}

// At is the absorption of one world tile. Rock takes the wall value, open
// ground varies around the ground value with porosity.
func (p PbrProducer) At(x, y int) float32 {
	if p.gen.Passability(x, y) < wallBelow {
		return p.wall
	}
	return clampAbsorption(p.ground * float32(0.5+p.gen.Porosity(x, y)))
}

// wallBelow matches the movement bounce-back threshold.
const wallBelow = 10

type EmitterProducer struct {
	gen      *terrain.Generator
	permille uint64
}

func NewEmitterProducer(gen *terrain.Generator, permille int) EmitterProducer {
	if permille < 0 {
		permille = 0
	}
	if permille > 1000 {
		permille = 1000
	}
	return EmitterProducer{gen: gen, permille: uint64(permille)}
}

func (EmitterProducer) DefaultValue() EmitterCell { return EmitterCell{} }

func (p EmitterProducer) GenerateChunk(c chunkmap.ChunkCoords, dim int) *chunkmap.Chunk[EmitterCell] {
	ch := chunkmap.NewChunk(dim, EmitterCell{})
	base := c.BottomLeftTile(dim)
	cells := ch.Grid.Cells()
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			cells[y*dim+x] = p.At(base.X+x, base.Y+y)
		}
	}
	return ch
}

// At places a white light on the origin and scatters coloured lights over
// open ground.
func (p EmitterProducer) At(x, y int) EmitterCell {
	if x == 0 && y == 0 {
		return EmitterCell{Lit: true, Light: FromRGB(255, 255, 255)}
	}
	h := p.gen.Hash(x, y)
	if h%1000 >= p.permille {
		return EmitterCell{}
	}
	if p.gen.Passability(x, y) < wallBelow {
		return EmitterCell{}
	}
	return EmitterCell{Lit: true, Light: FromRGB(uint8(h>>16), uint8(h>>24), uint8(h>>32))}
}

func clampAbsorption(a float32) float32 {
	if a < 0 || a != a {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}
