package world

import (
	"fmt"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/lightsim"
	"tilelight.ai/internal/sim/terrain"
	"tilelight.ai/internal/sim/tuning"
)

// Regenerator rebuilds layer chunks outside a running world, byte-encoded the
// same way observers and the tick log see them.
type Regenerator struct {
	dim         int
	passability terrain.PassabilityProducer
	emitters    lightsim.EmitterProducer
	pbr         lightsim.PbrProducer
}

func NewRegenerator(t tuning.Tuning) (*Regenerator, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	gen := terrain.NewGenerator(t.Terrain)
	return &Regenerator{
		dim:         t.ChunkSize,
		passability: terrain.NewPassabilityProducer(gen),
		emitters:    lightsim.NewEmitterProducer(gen, t.Lights.EmitterPermille),
		pbr:         lightsim.NewPbrProducer(gen, t.Lights.WallAbsorption, t.Lights.GroundAbsorption),
	}, nil
}

func (r *Regenerator) Chunk(layerName string, c chunkmap.ChunkCoords) ([]byte, error) {
	switch layerName {
	case observerproto.LayerPassability:
		return encodeCells(r.passability.GenerateChunk(c, r.dim), passabilityByte), nil
	case observerproto.LayerEmitters:
		return encodeCells(r.emitters.GenerateChunk(c, r.dim), lightsim.EmitterCell.Byte), nil
	case observerproto.LayerPbr:
		return encodeCells(r.pbr.GenerateChunk(c, r.dim), lightsim.PbrCell.Byte), nil
	default:
		return nil, fmt.Errorf("unknown layer %q", layerName)
	}
}

func (r *Regenerator) Digest(layerName string, c chunkmap.ChunkCoords) (string, error) {
	cells, err := r.Chunk(layerName, c)
	if err != nil {
		return "", err
	}
	return ChunkDigest(cells), nil
}

func encodeCells[T any](ch *chunkmap.Chunk[T], toByte func(T) byte) []byte {
	cells := ch.Grid.Cells()
	out := make([]byte, len(cells))
	for i, v := range cells {
		out[i] = toByte(v)
	}
	return out
}
