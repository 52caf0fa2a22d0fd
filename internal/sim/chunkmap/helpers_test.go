package chunkmap

import (
	"sync/atomic"

	"tilelight.ai/internal/sim/mathx"
)

type fillProducer struct {
	fill  uint8
	calls *atomic.Int64
}

func (p fillProducer) DefaultValue() uint8 { return 0 }

func (p fillProducer) GenerateChunk(c ChunkCoords, dim int) *Chunk[uint8] {
	if p.calls != nil {
		p.calls.Add(1)
	}
	return NewChunk(dim, p.fill)
}

// hashProducer is deterministic per absolute tile.
type hashProducer struct{}

func (hashProducer) DefaultValue() uint8 { return 0 }

func (hashProducer) GenerateChunk(c ChunkCoords, dim int) *Chunk[uint8] {
	ch := NewChunk(dim, uint8(0))
	bl := c.BottomLeftTile(dim)
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			ch.Grid.Set(x, y, uint8(mathx.Hash2(42, bl.X+x, bl.Y+y)))
		}
	}
	return ch
}

type panicProducer struct{ at ChunkCoords }

func (panicProducer) DefaultValue() uint8 { return 0 }

func (p panicProducer) GenerateChunk(c ChunkCoords, dim int) *Chunk[uint8] {
	if c == p.at {
		panic("boom")
	}
	return NewChunk(dim, uint8(1))
}

// manualExec holds jobs until runAll is called.
type manualExec struct{ queue []func() }

func (e *manualExec) Go(fn func()) { e.queue = append(e.queue, fn) }

func (e *manualExec) runAll() {
	q := e.queue
	e.queue = nil
	for _, fn := range q {
		fn()
	}
}
