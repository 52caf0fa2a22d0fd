package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"

	"tilelight.ai/internal/observerproto"
	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/encoding"
	"tilelight.ai/internal/sim/mathx"
)

var (
	rockColor   = colorful.Color{R: 0.23, G: 0.18, B: 0.18}
	groundColor = colorful.Color{R: 0.48, G: 0.60, B: 0.35}
	unknown     = colorful.Color{R: 0.05, G: 0.05, B: 0.08}
	// Light never drops below this, so unlit terrain stays readable.
	ambient = colorful.Color{R: 0.25, G: 0.25, B: 0.3}
)

// view is the client-side mirror of the observer stream.
type view struct {
	focusID string
	dim     int

	tick    uint64
	focus   *observerproto.FocusState
	chunks  map[chunkmap.ChunkCoords][]byte
	overlay *lightOverlay
}

type lightOverlay struct {
	origin chunkmap.Point
	size   int
	pix    []byte
}

func newView(focusID string, chunkDim int) *view {
	return &view{
		focusID: focusID,
		dim:     chunkDim,
		chunks:  map[chunkmap.ChunkCoords][]byte{},
	}
}

// apply folds one server frame into the view.
func (v *view) apply(frame []byte) error {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &base); err != nil {
		return err
	}
	switch base.Type {
	case observerproto.TypeTick:
		var m observerproto.TickMsg
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		v.tick = m.Tick
		v.focus = nil
		for i := range m.Focuses {
			if m.Focuses[i].ID == v.focusID {
				f := m.Focuses[i]
				v.focus = &f
			}
		}
	case observerproto.TypeChunk:
		var m observerproto.ChunkMsg
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		if m.Layer != observerproto.LayerPassability {
			return nil
		}
		cells, err := encoding.DecodeRLE(m.Data, m.Dim*m.Dim)
		if err != nil {
			return fmt.Errorf("chunk (%d,%d): %w", m.CX, m.CY, err)
		}
		v.dim = m.Dim
		v.chunks[chunkmap.ChunkCoords{X: m.CX, Y: m.CY}] = cells
	case observerproto.TypeChunkEvict:
		var m observerproto.ChunkEvictMsg
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		if m.Layer == observerproto.LayerPassability {
			delete(v.chunks, chunkmap.ChunkCoords{X: m.CX, Y: m.CY})
		}
	case observerproto.TypeLightOverlay:
		var m observerproto.LightOverlayMsg
		if err := json.Unmarshal(frame, &m); err != nil {
			return err
		}
		pix, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			return err
		}
		if len(pix) != m.Size*m.Size*4 {
			return fmt.Errorf("light overlay: %d bytes for size %d", len(pix), m.Size)
		}
		v.overlay = &lightOverlay{origin: chunkmap.Point{X: m.Origin[0], Y: m.Origin[1]}, size: m.Size, pix: pix}
	}
	return nil
}

func (v *view) passability(p chunkmap.Point) (byte, bool) {
	if v.dim <= 0 {
		return 0, false
	}
	cells, ok := v.chunks[chunkmap.ChunkFromPoint(p, v.dim)]
	if !ok {
		return 0, false
	}
	x, y := chunkmap.LocalFromTile(p, v.dim)
	return cells[y*v.dim+x], true
}

func (v *view) light(p chunkmap.Point) (colorful.Color, bool) {
	o := v.overlay
	if o == nil {
		return colorful.Color{}, false
	}
	x, y := p.X-o.origin.X, p.Y-o.origin.Y
	if x < 0 || y < 0 || x >= o.size || y >= o.size {
		return colorful.Color{}, false
	}
	i := (y*o.size + x) * 4
	return colorful.Color{R: float64(o.pix[i]) / 255, G: float64(o.pix[i+1]) / 255, B: float64(o.pix[i+2]) / 255}, true
}

// tileColor blends terrain by passability and multiplies it by the light.
func (v *view) tileColor(p chunkmap.Point) colorful.Color {
	pass, ok := v.passability(p)
	if !ok {
		return unknown
	}
	c := rockColor.BlendLab(groundColor, float64(pass)/255)
	l, ok := v.light(p)
	if !ok {
		return multiply(c, ambient)
	}
	lit := colorful.Color{
		R: max(l.R, ambient.R),
		G: max(l.G, ambient.G),
		B: max(l.B, ambient.B),
	}
	return multiply(c, lit)
}

func multiply(a, b colorful.Color) colorful.Color {
	return colorful.Color{R: a.R * b.R, G: a.G * b.G, B: a.B * b.B}.Clamped()
}

// screenToTile maps a terminal cell to a tile with the focus tile at the
// centre. Tile y grows upwards, terminal rows grow downwards.
func (v *view) screenToTile(col, row, width, height int) chunkmap.Point {
	var center chunkmap.Point
	if v.focus != nil {
		center = chunkmap.Point{X: v.focus.Tile[0], Y: v.focus.Tile[1]}
	}
	return chunkmap.Point{
		X: center.X + col - mathx.FloorDiv(width, 2),
		Y: center.Y - (row - mathx.FloorDiv(height, 2)),
	}
}
