package lightsim

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/sim/chunkmap"
)

// Overlay is the rendered light window. Pixel (x,y) shows tile Origin+(x,y).
type Overlay struct {
	Origin chunkmap.Point
	Image  *image.RGBA
	Lit    int
}

// Simulator diffuses emitter light across a fixed window of tiles around a
// focus. Not safe for concurrent use.
type Simulator struct {
	cfg    Config
	ref    Direction
	buf    *Buffers
	keep   []float32
	origin chunkmap.Point
	img    *image.RGBA
}

func New(cfg Config) (*Simulator, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ref, _ := ParseDirection(cfg.ReferenceDirection)
	n := cfg.OverlayTiles
	return &Simulator{
		cfg:  cfg,
		ref:  ref,
		buf:  NewBuffers(n),
		keep: make([]float32, n*n),
		img:  image.NewRGBA(image.Rect(0, 0, n, n)),
	}, nil
}

func (s *Simulator) Config() Config { return s.cfg }

func (s *Simulator) Buffers() *Buffers { return s.buf }

func (s *Simulator) Origin() chunkmap.Point { return s.origin }

// Recenter moves the window so that the focus tile sits in its middle.
func (s *Simulator) Recenter(focus chunkmap.Point) {
	half := s.cfg.OverlayTiles / 2
	s.origin = chunkmap.Point{X: focus.X - half, Y: focus.Y - half}
}

// Seed deposits every emitter in the window into all eight directions and
// promotes the result. It reports how many lit cells were found.
func (s *Simulator) Seed(emitters chunkmap.Reader[EmitterCell]) int {
	n := s.buf.size
	lit := 0
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			cell, ok := emitters.Read(s.origin.Add(chunkmap.Point{X: x, Y: y}))
			if !ok || !cell.Lit {
				continue
			}
			lit++
			for _, d := range All {
				s.buf.set(d, x, y, cell.Light.Color)
			}
		}
	}
	s.buf.Swap()
	return lit
}

// Step runs one propagation hop in every direction, then swaps generations.
// Unloaded tiles absorb nothing.
func (s *Simulator) Step(pbr chunkmap.Reader[PbrCell]) {
	n := s.buf.size
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			a := float32(0)
			if cell, ok := pbr.Read(s.origin.Add(chunkmap.Point{X: x, Y: y})); ok {
				a = clampAbsorption(cell.Absorption)
			}
			s.keep[y*n+x] = 1 - a
		}
	}
	for _, d := range All {
		src := s.buf.read[d]
		c1, c2 := d.Components()
		dx1, dy1 := c1.Offset()
		dx2, dy2 := c2.Offset()
		diagonal := d.IsDiagonal()
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				i := y*n + x
				out, live := s.transmit(src[i], s.keep[i])
				if !live {
					continue
				}
				s.buf.deposit(d, x, y, out)
				if !diagonal {
					s.buf.deposit(d, x+dx1, y+dy1, out)
					continue
				}
				half := Energy{out[0] / 2, out[1] / 2, out[2] / 2}
				s.buf.deposit(d, x+dx1, y+dy1, half)
				s.buf.deposit(d, x+dx2, y+dy2, half)
			}
		}
	}
	s.buf.Swap()
}

// transmit applies the energy cutoff and absorption per channel.
func (s *Simulator) transmit(e Energy, keep float32) (Energy, bool) {
	var out Energy
	live := false
	for c, v := range e {
		if v <= 0 || v < s.cfg.MinEnergy {
			continue
		}
		out[c] = int32(float64(v) * float64(keep))
		if out[c] > 0 {
			live = true
		}
	}
	return out, live
}

// Render converts the reference direction into the overlay image.
func (s *Simulator) Render() *image.RGBA {
	n := s.buf.size
	src := s.buf.read[s.ref]
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			s.img.SetRGBA(x, y, ConvertColor(src[y*n+x]))
		}
	}
	return s.img
}

// Run recentres on focus, seeds, steps and renders. The returned image is
// reused by the next call.
func (s *Simulator) Run(focus mgl32.Vec2, tileSize float32, emitters chunkmap.Reader[EmitterCell], pbr chunkmap.Reader[PbrCell]) Overlay {
	s.Recenter(chunkmap.TileFromWorld(focus, tileSize))
	lit := s.Seed(emitters)
	for i := 0; i < s.cfg.Steps; i++ {
		s.Step(pbr)
	}
	return Overlay{Origin: s.origin, Image: s.Render(), Lit: lit}
}

func (o Overlay) String() string {
	if o.Image == nil {
		return "overlay(empty)"
	}
	b := o.Image.Bounds()
	return fmt.Sprintf("overlay(%d,%d %dx%d lit=%d)", o.Origin.X, o.Origin.Y, b.Dx(), b.Dy(), o.Lit)
}

// FocusEnergy is the reference-direction energy on the focus tile after the
// last Run.
func (s *Simulator) FocusEnergy() Energy {
	half := s.cfg.OverlayTiles / 2
	return s.buf.Read(s.ref, half, half)
}
