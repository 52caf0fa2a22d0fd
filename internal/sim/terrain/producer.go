package terrain

import "tilelight.ai/internal/sim/chunkmap"

// PassabilityProducer fills passability chunks from a Generator.
type PassabilityProducer struct {
	gen *Generator
}

func NewPassabilityProducer(gen *Generator) PassabilityProducer {
	return PassabilityProducer{gen: gen}
}

func (PassabilityProducer) DefaultValue() Passability { return Impassable }

func (p PassabilityProducer) GenerateChunk(c chunkmap.ChunkCoords, dim int) *chunkmap.Chunk[Passability] {
	ch := chunkmap.NewChunk(dim, Free)
	base := c.BottomLeftTile(dim)
	cells := ch.Grid.Cells()
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			cells[y*dim+x] = p.gen.Passability(base.X+x, base.Y+y)
		}
	}
	return ch
}
