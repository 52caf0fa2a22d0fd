package world

import (
	"image/color"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
)

// layer is the byte view of one chunk map used by observers, metrics and logs.
type layer struct {
	name  string
	dim   int
	stats func() chunkmap.Stats
	// version reports the read-snapshot version of a loaded chunk.
	version func(c chunkmap.ChunkCoords) (uint64, bool)
	encode  func(c chunkmap.ChunkCoords) ([]byte, bool)
	loaded  func() []chunkmap.ChunkCoords
}

func newLayer[T any](src chunkmap.Source[T], stats func() chunkmap.Stats, toByte func(T) byte) layer {
	return layer{
		name:  src.Name(),
		dim:   src.ChunkDim(),
		stats: stats,
		version: func(c chunkmap.ChunkCoords) (uint64, bool) {
			ch, ok := src.Chunk(c)
			if !ok {
				return 0, false
			}
			return ch.Version(), true
		},
		encode: func(c chunkmap.ChunkCoords) ([]byte, bool) {
			ch, ok := src.Chunk(c)
			if !ok {
				return nil, false
			}
			return encodeCells(ch, toByte), true
		},
		loaded: src.LoadedChunks,
	}
}

func (l *layer) mapStats() observerproto.MapStats {
	s := l.stats()
	return observerproto.MapStats{
		Name:         l.name,
		Loaded:       s.Loaded,
		Requested:    s.Requested,
		Pending:      s.Pending,
		QueuedWrites: s.QueuedWrites,
		Spawned:      s.Spawned,
		Completed:    s.Completed,
		Evicted:      s.Evicted,
		Failed:       s.Failed,
		Abandoned:    s.Abandoned,
	}
}

func whiteWithAlpha(a byte) color.RGBA {
	return color.RGBA{R: 255, G: 255, B: 255, A: a}
}
