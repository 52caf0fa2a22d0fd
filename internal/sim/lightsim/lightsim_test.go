package lightsim

import (
	"image/color"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"tilelight.ai/internal/sim/chunkmap"
	"tilelight.ai/internal/sim/terrain"
)

type tileReader[T any] map[chunkmap.Point]T

func (r tileReader[T]) Read(p chunkmap.Point) (T, bool) {
	v, ok := r[p]
	return v, ok
}

func newTestSim(t *testing.T, size int, minEnergy int32) *Simulator {
	t.Helper()
	s, err := New(Config{OverlayTiles: size, Steps: 1, MinEnergy: minEnergy, ReferenceDirection: "N"})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return s
}

func lightAt(x, y int, e Energy) tileReader[EmitterCell] {
	return tileReader[EmitterCell]{{X: x, Y: y}: {Lit: true, Light: LightDefinition{Color: e}}}
}

func TestConvertColor(t *testing.T) {
	got := ConvertColor(Energy{math.MaxInt32 / 2, math.MaxInt32 / 4, -100})
	if got != (color.RGBA{R: 189, G: 131, B: 0, A: 255}) {
		t.Fatalf("mid: %+v", got)
	}
	if got := ConvertColor(Energy{}); got != (color.RGBA{A: 255}) {
		t.Fatalf("zero: %+v", got)
	}
	if got := ConvertColor(Energy{math.MaxInt32, math.MaxInt32, math.MaxInt32}); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("max: %+v", got)
	}
}

func TestLightDefinitionRoundTrip(t *testing.T) {
	red := FromRGB(255, 0, 0)
	if red.Color != (Energy{math.MaxInt32, 0, 0}) {
		t.Fatalf("red energy: %v", red.Color)
	}
	if got := red.RGBA(); got != (color.RGBA{R: 255, A: 255}) {
		t.Fatalf("red rgba: %+v", got)
	}
	half := FromRGBA(color.RGBA{R: 255, G: 255, B: 255, A: 128})
	if got := half.RGBA(); got != (color.RGBA{R: 255, G: 255, B: 255, A: 128}) {
		t.Fatalf("half alpha rgba: %+v", got)
	}
	if got := FromRGBA(color.RGBA{R: 200}).Color; got != (Energy{}) {
		t.Fatalf("transparent light carries energy: %v", got)
	}
}

func TestDirections(t *testing.T) {
	for _, d := range All {
		p, err := ParseDirection(d.String())
		if err != nil || p != d {
			t.Fatalf("parse %s: %v %v", d, p, err)
		}
		if d.IsDiagonal() == d.IsOrthogonal() {
			t.Fatalf("%s both or neither", d)
		}
	}
	if a, b := NE.Components(); a != N || b != E {
		t.Fatalf("NE components %s %s", a, b)
	}
	if a, b := W.Components(); a != W || b != W {
		t.Fatalf("W components %s %s", a, b)
	}
	if dx, dy := N.Offset(); dx != 0 || dy != -1 {
		t.Fatalf("N offset %d,%d", dx, dy)
	}
	if _, err := ParseDirection("up"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSubCutoffEnergyIsInert(t *testing.T) {
	s := newTestSim(t, 8, 1000)
	s.Seed(lightAt(3, 3, Energy{999, 999, 999}))
	if got := s.Buffers().Read(N, 3, 3); got != (Energy{999, 999, 999}) {
		t.Fatalf("seed not promoted: %v", got)
	}
	s.Step(tileReader[PbrCell]{})
	for _, d := range All {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				if got := s.Buffers().Read(d, x, y); got != (Energy{}) {
					t.Fatalf("%s (%d,%d) = %v after sub-cutoff step", d, x, y, got)
				}
			}
		}
	}
}

func TestCutoffIsPerChannel(t *testing.T) {
	s := newTestSim(t, 8, 1000)
	s.Seed(lightAt(3, 3, Energy{1000, 999, 0}))
	s.Step(tileReader[PbrCell]{})
	if got := s.Buffers().Read(E, 4, 3); got != (Energy{1000, 0, 0}) {
		t.Fatalf("east neighbour %v", got)
	}
}

func TestOrthogonalAndDiagonalPropagation(t *testing.T) {
	s := newTestSim(t, 8, 1)
	s.Seed(lightAt(3, 3, Energy{1000, 0, 0}))
	s.Step(tileReader[PbrCell]{})
	b := s.Buffers()

	cases := []struct {
		d    Direction
		x, y int
		want int32
	}{
		{N, 3, 3, 1000},
		{N, 3, 2, 1000},
		{N, 3, 4, 0},
		{E, 4, 3, 1000},
		{S, 3, 4, 1000},
		{W, 2, 3, 1000},
		{NE, 3, 3, 1000},
		{NE, 3, 2, 500},
		{NE, 4, 3, 500},
		{NE, 4, 2, 0},
		{SW, 3, 4, 500},
		{SW, 2, 3, 500},
	}
	for _, tc := range cases {
		if got := b.Read(tc.d, tc.x, tc.y)[0]; got != tc.want {
			t.Fatalf("%s (%d,%d) = %d, want %d", tc.d, tc.x, tc.y, got, tc.want)
		}
	}
	if got := b.Pending(N, 3, 3); got != (Energy{}) {
		t.Fatalf("write generation not cleared: %v", got)
	}
}

func TestAbsorptionRetainsComplement(t *testing.T) {
	s := newTestSim(t, 8, 1)
	s.Seed(lightAt(3, 3, Energy{1000, 0, 0}))
	s.Step(tileReader[PbrCell]{{X: 3, Y: 3}: {Absorption: 0.5}})
	if got := s.Buffers().Read(N, 3, 2)[0]; got != 500 {
		t.Fatalf("half absorption: %d", got)
	}

	s.Seed(lightAt(3, 3, Energy{1000, 0, 0}))
	s.Step(tileReader[PbrCell]{{X: 3, Y: 3}: {Absorption: 1}})
	if got := s.Buffers().Read(N, 3, 2)[0]; got != 0 {
		t.Fatalf("full absorption leaked %d", got)
	}
}

func TestUnloadedPbrTileTransmitsFully(t *testing.T) {
	s := newTestSim(t, 8, 1)
	s.Seed(lightAt(3, 3, Energy{1000, 0, 0}))
	// (3,3) is missing from the reader, as at the edge of the loaded area.
	s.Step(tileReader[PbrCell]{{X: 4, Y: 4}: {Absorption: 1}})
	if got := s.Buffers().Read(N, 3, 2)[0]; got != 1000 {
		t.Fatalf("unloaded tile dimmed light to %d", got)
	}

	loaded := newTestSim(t, 8, 1)
	loaded.Seed(lightAt(3, 3, Energy{1000, 0, 0}))
	loaded.Step(tileReader[PbrCell]{{X: 3, Y: 3}: {Absorption: 0}})
	for _, d := range All {
		if a, b := s.Buffers().Read(d, 3, 2), loaded.Buffers().Read(d, 3, 2); a != b {
			t.Fatalf("%v: unloaded %v, zero-absorption %v", d, a, b)
		}
	}
}

func TestEdgeWritesAreDropped(t *testing.T) {
	s := newTestSim(t, 4, 1)
	s.Seed(lightAt(0, 0, Energy{1000, 1000, 1000}))
	s.Step(tileReader[PbrCell]{})
	if got := s.Buffers().Read(N, 0, 0); got != (Energy{1000, 1000, 1000}) {
		t.Fatalf("redeposit at edge: %v", got)
	}
	if got := s.Buffers().Read(N, 0, 3); got != (Energy{}) {
		t.Fatalf("energy wrapped around: %v", got)
	}
}

func TestEnergySaturates(t *testing.T) {
	s := newTestSim(t, 6, 1)
	s.Seed(lightAt(3, 3, Energy{math.MaxInt32, math.MaxInt32, 1}))
	for i := 0; i < 6; i++ {
		s.Step(tileReader[PbrCell]{})
	}
	// Cell k rows north of the seed holds C(steps, k) times the seed energy.
	got := s.Buffers().Read(N, 3, 1)
	if got[0] != math.MaxInt32 || got[1] != math.MaxInt32 {
		t.Fatalf("not saturated: %v", got)
	}
	if got[2] != 15 {
		t.Fatalf("unsaturated channel: %d", got[2])
	}
	if got := s.Buffers().Read(N, 3, 3); got[2] != 1 {
		t.Fatalf("seed cell only keeps its own energy: %d", got[2])
	}
}

func TestRunCentresOnFocus(t *testing.T) {
	s, err := New(Config{OverlayTiles: 8, Steps: 2, MinEnergy: 1, ReferenceDirection: "N"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	emitters := tileReader[EmitterCell]{{}: {Lit: true, Light: FromRGB(255, 255, 255)}}
	ov := s.Run(mgl32.Vec2{0, 0}, 16, emitters, tileReader[PbrCell]{})
	if ov.Origin != (chunkmap.Point{X: -4, Y: -4}) || ov.Lit != 1 {
		t.Fatalf("overlay %v", ov)
	}
	if got := ov.Image.RGBAAt(4, 4); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("focus pixel %+v", got)
	}
	if got := ov.Image.RGBAAt(4, 7); got != (color.RGBA{A: 255}) {
		t.Fatalf("north light reached the south: %+v", got)
	}
	if got := s.FocusEnergy(); got[0] != math.MaxInt32 {
		t.Fatalf("focus energy %v", got)
	}

	ov = s.Run(mgl32.Vec2{-1, -1}, 16, emitters, tileReader[PbrCell]{})
	if ov.Origin != (chunkmap.Point{X: -5, Y: -5}) {
		t.Fatalf("negative focus origin %v", ov.Origin)
	}
}

func TestConfigRejectsUnknownReference(t *testing.T) {
	if _, err := New(Config{ReferenceDirection: "UP"}); err == nil {
		t.Fatalf("expected error")
	}
	cfg := Config{}
	cfg.Normalize()
	if cfg.OverlayTiles != 32 || cfg.ReferenceDirection != "N" {
		t.Fatalf("defaults %+v", cfg)
	}
}

func TestProducers(t *testing.T) {
	tcfg := terrain.DefaultConfig()
	tcfg.Mode = terrain.ModeRadial
	gen := terrain.NewGenerator(tcfg)

	emit := NewEmitterProducer(gen, 1000)
	if c := emit.At(0, 0); !c.Lit || c.Byte() != 255 {
		t.Fatalf("origin light %+v", c)
	}
	if c := emit.At(3, 0); !c.Lit {
		t.Fatalf("full density should light open ground")
	}
	if c := emit.At(100, 0); c.Lit {
		t.Fatalf("light placed inside rock")
	}
	if (EmitterCell{}).Byte() != 0 {
		t.Fatalf("unlit byte")
	}

	pbr := NewPbrProducer(gen, 0.9, 0.05)
	if a := pbr.At(100, 0); a != 0.9 {
		t.Fatalf("wall absorption %v", a)
	}
	if a := pbr.At(0, 0); a < 0.025 || a > 0.075 {
		t.Fatalf("ground absorption %v", a)
	}
	ch := pbr.GenerateChunk(chunkmap.ChunkCoords{X: 6}, 16)
	if v, _ := ch.Grid.Get(0, 0); v.Absorption != 0.9 {
		t.Fatalf("chunk (6,0) should be rock, got %v", v)
	}
	if (PbrCell{Absorption: 1}).Byte() != 255 || (PbrCell{}).Byte() != 0 {
		t.Fatalf("pbr byte packing")
	}
}
