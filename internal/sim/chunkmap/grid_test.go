package chunkmap

import "testing"

func TestGridCornersAndBounds(t *testing.T) {
	g := NewGrid(16, uint8(0))
	corners := [][2]int{{0, 0}, {15, 0}, {0, 15}, {15, 15}}
	for i, c := range corners {
		if !g.Set(c[0], c[1], uint8(i+1)) {
			t.Fatalf("set corner %v failed", c)
		}
	}
	for i, c := range corners {
		v, ok := g.Get(c[0], c[1])
		if !ok || v != uint8(i+1) {
			t.Fatalf("corner %v: got %d ok=%v", c, v, ok)
		}
	}
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {16, 0}, {0, 16}} {
		if _, ok := g.Get(c[0], c[1]); ok {
			t.Fatalf("expected out of bounds for %v", c)
		}
		if g.Set(c[0], c[1], 9) {
			t.Fatalf("set out of bounds %v should fail", c)
		}
		if g.Ptr(c[0], c[1]) != nil {
			t.Fatalf("ptr out of bounds %v should be nil", c)
		}
	}
}

func TestGridRowMajor(t *testing.T) {
	g := NewGrid(16, 0)
	g.Set(3, 2, 7)
	if got := g.Cells()[2*16+3]; got != 7 {
		t.Fatalf("row-major index: got %d want 7", got)
	}
	*g.Ptr(4, 5) = 11
	if v, _ := g.Get(4, 5); v != 11 {
		t.Fatalf("ptr write not visible: %d", v)
	}
}

func TestChunkCloneIsIndependent(t *testing.T) {
	c := NewChunk(4, 1)
	c.set(0, 0, 5)
	cl := c.Clone()
	c.set(0, 0, 6)
	if v, _ := cl.Grid.Get(0, 0); v != 5 {
		t.Fatalf("clone aliased source: %d", v)
	}
	if cl.Version() != 1 || c.Version() != 2 {
		t.Fatalf("versions: clone=%d src=%d", cl.Version(), c.Version())
	}
}
