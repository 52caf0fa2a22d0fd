package world

import (
	"crypto/sha256"
	"encoding/hex"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
)

// TickLogger receives one entry per tick from the world loop goroutine.
// Implementations must not block for long.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	RunID     string                     `json:"run_id"`
	Tick      uint64                     `json:"tick"`
	StepMS    float64                    `json:"step_ms"`
	Focuses   []observerproto.FocusState `json:"focuses,omitempty"`
	Maps      []observerproto.MapStats   `json:"maps"`
	Generated []GeneratedLog             `json:"generated,omitempty"`
}

// GeneratedLog records one chunk merged into a map during the tick.
type GeneratedLog struct {
	Layer   string `json:"layer"`
	CX      int    `json:"cx"`
	CY      int    `json:"cy"`
	Micros  int64  `json:"us"`
	Flushed int    `json:"flushed,omitempty"`
	// Digest hashes the merged chunk's layer bytes, queued writes included.
	Digest string `json:"digest,omitempty"`
}

func (w *World) tickLogEntry(nowTick uint64, stepMS float64, focuses []observerproto.FocusState, generated map[string][]chunkmap.Generated) TickLogEntry {
	e := TickLogEntry{
		RunID:   w.runID,
		Tick:    nowTick,
		StepMS:  stepMS,
		Focuses: focuses,
		Maps:    make([]observerproto.MapStats, 0, len(w.layers)),
	}
	for i := range w.layers {
		l := &w.layers[i]
		e.Maps = append(e.Maps, l.mapStats())
		for _, g := range generated[l.name] {
			gl := GeneratedLog{
				Layer:   l.name,
				CX:      g.Coords.X,
				CY:      g.Coords.Y,
				Micros:  g.Took.Microseconds(),
				Flushed: g.Flushed,
			}
			if cells, ok := l.encode(g.Coords); ok {
				gl.Digest = ChunkDigest(cells)
			}
			e.Generated = append(e.Generated, gl)
		}
	}
	return e
}

func ChunkDigest(cells []byte) string {
	sum := sha256.Sum256(cells)
	return hex.EncodeToString(sum[:16])
}
